// Package term is a minimal leveled logger, gated by internal/consts.Debug,
// for implementer-facing diagnostics. It never produces user-visible
// Lua output.
package term

import (
	"fmt"

	"github.com/lollipopkit/lua54/internal/consts"
)

func I(format string, a ...any) {
	if consts.Debug {
		fmt.Printf("[INFO] "+format+"\n", a...)
	}
}

func W(format string, a ...any) {
	if consts.Debug {
		fmt.Printf("[WARN] "+format+"\n", a...)
	}
}

func E(format string, a ...any) {
	if consts.Debug {
		fmt.Printf("[ERROR] "+format+"\n", a...)
	}
}
