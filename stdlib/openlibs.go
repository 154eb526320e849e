package stdlib

import (
	"github.com/lollipopkit/lua54/debuglib"
	"github.com/lollipopkit/lua54/state"
)

// OpenLibs installs every standard library this engine ships.
func OpenLibs(th *state.Thread, globals *state.Table) {
	OpenBase(th, globals)
	OpenMath(th, globals)
	strMeta := OpenString(th, globals)
	OpenTable(th, globals)
	OpenOS(th, globals)
	OpenCoroutine(th, globals)
	debuglib.OpenDebug(th, globals)
	th.SetStringMetatable(strMeta)
}
