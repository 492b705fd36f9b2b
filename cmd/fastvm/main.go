package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/aionnetwork/fastvm/core/evmjit/compiler"
)

var (
	hexFlag = &cli.StringFlag{
		Name:  "hex",
		Usage: "contract bytecode as hex (with or without 0x prefix)",
	}
	fileFlag = &cli.StringFlag{
		Name:  "file",
		Usage: "path to a file containing contract bytecode hex",
	}
	revFlag = &cli.StringFlag{
		Name:  "rev",
		Usage: "VM revision (frontier, homestead, tangerine, spurious, byzantium, aion, aion_v1)",
		Value: "aion",
	}
	staticFlag = &cli.BoolFlag{
		Name:  "static",
		Usage: "compile in static-call mode",
	}
	verbosityFlag = &cli.BoolFlag{
		Name:  "verbose",
		Usage: "enable compiler debug logging",
	}
)

func main() {
	app := &cli.App{
		Name:  "fastvm",
		Usage: "compile EVM bytecode to IR",
		Commands: []*cli.Command{
			{
				Name:   "compile",
				Usage:  "compile bytecode and dump the module IR",
				Flags:  []cli.Flag{hexFlag, fileFlag, revFlag, staticFlag, verbosityFlag},
				Action: compileAction,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func compileAction(ctx *cli.Context) error {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelInfo, false)))
	if ctx.Bool(verbosityFlag.Name) {
		compiler.EnableDebugLogs(true)
	}

	code, err := loadBytecode(ctx.String(hexFlag.Name), ctx.String(fileFlag.Name))
	if err != nil {
		return err
	}

	rev, ok := compiler.RevisionByName(ctx.String(revFlag.Name))
	if !ok {
		return fmt.Errorf("unknown revision %q", ctx.String(revFlag.Name))
	}

	cfg := compiler.Config{Revision: rev, StaticCall: ctx.Bool(staticFlag.Name)}
	mod := compiler.CompileCached(cfg, code)

	fmt.Print(mod.String())
	return nil
}

func loadBytecode(hexArg, fileArg string) ([]byte, error) {
	if hexArg == "" && fileArg == "" {
		return nil, errors.New("one of --hex or --file is required")
	}
	s := hexArg
	if fileArg != "" {
		raw, err := os.ReadFile(fileArg)
		if err != nil {
			return nil, err
		}
		s = string(raw)
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	code, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode bytecode: %w", err)
	}
	return code, nil
}
