package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lollipopkit/lua54/compiler"
	"github.com/lollipopkit/lua54/internal/consts"
	"github.com/lollipopkit/lua54/state"
	"github.com/lollipopkit/lua54/stdlib"
)

func main() {
	var snippet string
	var strictHooks bool
	var debug bool

	root := &cobra.Command{
		Use:           "lua54 [script]",
		Short:         "run a Lua 5.4 chunk",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MaximumNArgs(1),
	}
	root.Flags().StringVarP(&snippet, "execute", "e", "", "execute `string` instead of a file")
	root.Flags().BoolVar(&strictHooks, "strict-hooks", true, "propagate errors raised inside debug hooks")
	root.Flags().BoolVar(&debug, "debug", false, "enable internal diagnostic logging")

	root.RunE = func(cmd *cobra.Command, args []string) error {
		consts.Debug = debug

		var src, chunkName string
		var fromFile bool
		switch {
		case snippet != "":
			src, chunkName = snippet, "=(command line)"
		case len(args) == 1:
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			src, chunkName, fromFile = string(data), "@"+args[0], true
		default:
			return fmt.Errorf("no input: pass a script path or -e 'chunk'")
		}

		proto, err := compiler.Compile(src, chunkName, fromFile)
		if err != nil {
			return fmt.Errorf("compile: %w", err)
		}

		cfg := state.DefaultConfig()
		cfg.StrictHooks = strictHooks
		th := state.New(cfg)
		stdlib.OpenLibs(th, th.Globals())

		closure := state.LoadMainChunk(proto, th.Globals())
		ok, results := state.PCall(th, closure, nil, nil)
		if !ok {
			msg := "?"
			if len(results) > 0 {
				msg = state.ToStringValue(results[0])
			}
			if tb := th.LastTraceback(); len(tb) > 0 {
				msg += "\nstack traceback:\n\t" + strings.Join(tb, "\n\t")
			}
			return fmt.Errorf("%s", msg)
		}
		return nil
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lua54:", err)
		os.Exit(1)
	}
}
