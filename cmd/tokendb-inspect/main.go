// Command tokendb-inspect is a small operator tool for a token database
// directory: it opens the store (replaying its checkpoint log the same way a
// host process would), reports savepoint depth, dumps individual
// token-family rows or ranges, and writes a default config file. It never
// writes token or asset rows, and it has no command for asset rows.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/evtnetwork/tokendb"
	"github.com/evtnetwork/tokendb/engine"
)

var (
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Usage: "directory holding the token database",
	}
	cacheSizeFlag = cli.IntFlag{
		Name:  "cache-size",
		Value: 128,
		Usage: "engine cache budget, in MiB (half block cache, a quarter write buffer)",
	}
	domainFlag = cli.StringFlag{
		Name:  "domain",
		Usage: "domain name, required for type=token",
	}
	typeFlag = cli.StringFlag{
		Name:  "type",
		Usage: "entity type: domain|token|group|fungible|suspend|lock|evtlink|prodvote",
	}
	skipFlag = cli.IntFlag{
		Name:  "skip",
		Usage: "number of leading range entries to skip",
	}
	limitFlag = cli.IntFlag{
		Name:  "limit",
		Value: 20,
		Usage: "maximum number of range entries to print",
	}
)

func main() {
	app := cli.App{
		Name:  "tokendb-inspect",
		Usage: "inspect a token database's savepoint stack and stored rows",
		Flags: []cli.Flag{dataDirFlag, cacheSizeFlag},
		Commands: []cli.Command{
			{
				Name:   "info",
				Usage:  "print savepoint depth and database path",
				Action: infoAction,
			},
			{
				Name:      "get-token",
				Usage:     "print one token-family value",
				ArgsUsage: "<key-name>",
				Flags:     []cli.Flag{typeFlag, domainFlag},
				Action:    getTokenAction,
			},
			{
				Name:      "range-tokens",
				Usage:     "list token-family rows under a type/domain",
				Flags:     []cli.Flag{typeFlag, domainFlag, skipFlag, limitFlag},
				Action:    rangeTokensAction,
			},
			{
				Name:   "init-config",
				Usage:  "write a default config.yaml to <data-dir>/config.yaml",
				Action: initConfigAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openDB(ctx *cli.Context) (*tokendb.DB, error) {
	dir := ctx.GlobalString(dataDirFlag.Name)
	if dir == "" {
		return nil, fmt.Errorf("--data-dir is required")
	}
	cfg := tokendb.DefaultConfig(dir)
	if n := ctx.GlobalInt(cacheSizeFlag.Name); n > 0 {
		cfg.CacheSizeMiB = n
	}
	cfg.Profile = engine.ProfileDisk
	return tokendb.Open(cfg)
}

func parseType(s string) (tokendb.TokenType, error) {
	switch s {
	case "domain":
		return tokendb.TypeDomain, nil
	case "token":
		return tokendb.TypeToken, nil
	case "group":
		return tokendb.TypeGroup, nil
	case "fungible":
		return tokendb.TypeFungible, nil
	case "suspend":
		return tokendb.TypeSuspend, nil
	case "lock":
		return tokendb.TypeLock, nil
	case "evtlink":
		return tokendb.TypeEvtLink, nil
	case "prodvote":
		return tokendb.TypeProdVote, nil
	default:
		return 0, fmt.Errorf("unknown --type %q", s)
	}
}

func infoAction(ctx *cli.Context) error {
	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Printf("path: %s\n", ctx.GlobalString(dataDirFlag.Name))
	fmt.Printf("savepoints: %d\n", db.Depth())
	return nil
}

func getTokenAction(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("usage: tokendb-inspect get-token --type T [--domain D] <key-name>")
	}
	t, err := parseType(ctx.String(typeFlag.Name))
	if err != nil {
		return err
	}

	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	var domain *tokendb.Name128
	if d := ctx.String(domainFlag.Name); d != "" {
		n := tokendb.NewName128(d)
		domain = &n
	}

	key := tokendb.NewName128(ctx.Args().First())
	val, found, err := db.ReadToken(t, domain, key, true)
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("(not found)")
		return nil
	}
	fmt.Println(hex.EncodeToString(val))
	return nil
}

func rangeTokensAction(ctx *cli.Context) error {
	t, err := parseType(ctx.String(typeFlag.Name))
	if err != nil {
		return err
	}

	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	var domain *tokendb.Name128
	if d := ctx.String(domainFlag.Name); d != "" {
		n := tokendb.NewName128(d)
		domain = &n
	}

	limit := ctx.Int(limitFlag.Name)
	printed := 0
	n, err := db.ReadTokensRange(t, domain, ctx.Int(skipFlag.Name), func(key tokendb.Name128, value []byte) bool {
		fmt.Printf("%s\t%s\n", key.String(), hex.EncodeToString(value))
		printed++
		return limit <= 0 || printed < limit
	})
	if err != nil {
		return err
	}
	fmt.Printf("(%d entries)\n", n)
	return nil
}

func initConfigAction(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("usage: tokendb-inspect init-config <data-dir>")
	}
	dir := ctx.Args().First()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	cfg := tokendb.DefaultConfig(dir)
	return cfg.Save(dir + "/config.yaml")
}
