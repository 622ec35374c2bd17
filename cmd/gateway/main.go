// Command gateway is the CLI boundary (spec.md §6, SPEC_FULL.md §4.9):
// it parses the address URI and flags, resolves the connection
// password, constructs the bookmark store, seal key, and the three
// core subsystems, then hands off to the terminal UI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/warrengalyen/gateway/internal/backend/ftpfs"
	"github.com/warrengalyen/gateway/internal/backend/localfs"
	"github.com/warrengalyen/gateway/internal/backend/scpfs"
	"github.com/warrengalyen/gateway/internal/backend/sftpfs"
	"github.com/warrengalyen/gateway/internal/bookmark"
	"github.com/warrengalyen/gateway/internal/gwlog"
	"github.com/warrengalyen/gateway/internal/orchestrator"
	"github.com/warrengalyen/gateway/internal/pathutil"
	"github.com/warrengalyen/gateway/internal/remotefs"
	"github.com/warrengalyen/gateway/internal/seal"
	"github.com/warrengalyen/gateway/internal/tui"
)

// version is the build-reported version string for -v/--version.
const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	flags := pflag.NewFlagSet("gateway", pflag.ContinueOnError)
	password := flags.StringP("password", "P", "", "connection password")
	bookmarkName := flags.StringP("bookmark", "b", "", "connect using a saved bookmark by name")
	showVersion := flags.BoolP("version", "v", false, "print version and exit")
	flags.SortFlags = false

	if err := flags.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			printUsage()
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		printUsage()
		return 2
	}
	if *showVersion {
		fmt.Println("gateway " + version)
		return 0
	}

	args := flags.Args()
	if len(args) > 1 || (len(args) == 0) == (*bookmarkName == "") {
		printUsage()
		return 2
	}

	configDir, err := configDirPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	key, err := seal.LoadOrGenerate(filepath.Join(configDir, "sealkey"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	store, err := bookmark.Open(filepath.Join(configDir, "bookmarks.toml"), key)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// bookmarkPassword is the revealed sealed password when the user
	// connected via --bookmark, so resolvePassword's precedence chain
	// (flag, then bookmark, then prompt) can consult it per spec.md §6.
	addr, bookmarkPassword, err := resolveAddress(args, *bookmarkName, store)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	pw, err := resolvePassword(*password, bookmarkPassword)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	remote, err := backendFor(addr.Protocol)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	act := orchestrator.New(localfs.New(cwd))
	act.SetBookmarkStore(store)
	gwlog.Logf("connecting to %s://%s@%s:%d", addr.Protocol, addr.Username, addr.Host, addr.Port)
	if err := act.Connect(remote, addr.Protocol, addr.Host, strconv.Itoa(addr.Port), addr.Username, pw); err != nil {
		gwlog.Errorf("connect failed: %v", err)
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	_ = store.PushRecent(bookmark.Bookmark{
		Address:  addr.Host,
		Port:     addr.Port,
		Protocol: addr.Protocol,
		Username: addr.Username,
	})

	screen, err := tui.New(act)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer screen.Close()
	screen.Run()

	return 0
}

// backendFor constructs the unconnected remotefs.Filesystem for the
// requested protocol, per spec.md §4.9's "constructs the three core
// subsystems" responsibility.
func backendFor(p pathutil.Protocol) (remotefs.Filesystem, error) {
	switch p {
	case pathutil.ProtocolSFTP:
		return sftpfs.New(), nil
	case pathutil.ProtocolSCP:
		return scpfs.New(), nil
	case pathutil.ProtocolFTP:
		return ftpfs.New(false), nil
	case pathutil.ProtocolFTPS:
		return ftpfs.New(true), nil
	default:
		return nil, fmt.Errorf("unsupported protocol %q", p)
	}
}

// resolveAddress resolves the connection target either from the
// positional address URI or, when bookmarkName is set, by looking the
// bookmark up in store and revealing its sealed password (the "select
// a bookmark to connect" flow spec.md §4.6/§8 requires). Exactly one of
// args/bookmarkName is populated, enforced by run's flag validation.
func resolveAddress(args []string, bookmarkName string, store *bookmark.Store) (pathutil.Address, string, error) {
	if bookmarkName == "" {
		addr, err := pathutil.ParseAddress(args[0])
		return addr, "", err
	}
	b, err := store.Get(bookmarkName)
	if err != nil {
		return pathutil.Address{}, "", err
	}
	pw, err := store.Reveal(b)
	if err != nil {
		return pathutil.Address{}, "", err
	}
	addr := pathutil.Address{Protocol: b.Protocol, Username: b.Username, Host: b.Address, Port: b.Port}
	return addr, pw, nil
}

// resolvePassword implements the precedence order from spec.md §6:
// the -P flag, then the bookmark's revealed sealed password (when the
// user connected via --bookmark), then an interactive no-echo terminal
// prompt.
func resolvePassword(flagValue, bookmarkPassword string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if bookmarkPassword != "" {
		return bookmarkPassword, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func configDirPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "gateway"), nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: gateway [protocol://][username@]host[:port]")
	fmt.Fprintln(os.Stderr, "       gateway --bookmark name")
	fmt.Fprintln(os.Stderr, "  -P, --password string   connection password")
	fmt.Fprintln(os.Stderr, "  -b, --bookmark string   connect using a saved bookmark by name")
	fmt.Fprintln(os.Stderr, "  -v, --version           print version and exit")
}
