// An interactive demo: an authority-side list and set mirrored into an
// observer over the in-process loopback transport. Mutations go through
// the authority's public API; every command ends with a sync tick, so
// "show" always prints both sides of the wire.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ergochat/readline"

	"github.com/syncwire/syncwire"
	"github.com/syncwire/syncwire/codec"
	"github.com/syncwire/syncwire/transport"
	"github.com/syncwire/syncwire/utils"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("add"),
	readline.PcItem("insert"),
	readline.PcItem("set"),
	readline.PcItem("rm"),
	readline.PcItem("clear"),
	readline.PcItem("sadd"),
	readline.PcItem("srm"),
	readline.PcItem("sclear"),
	readline.PcItem("show"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func help() {
	fmt.Println(`list:  add <v> | insert <i> <v> | set <i> <v> | rm <i> | clear
set:   sadd <v> | srm <v> | sclear
other: show | help | exit`)
}

func parseIndex(arg string) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("bad index %q", arg)
	}
	return i, nil
}

func main() {
	l, err := readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     "/tmp/syncwire-repl.tmp",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	log := utils.NewDefaultLogger(slog.LevelWarn)
	hub := transport.NewLoopback()

	authList := syncwire.NewList[string](codec.String{})
	authSet := syncwire.NewSet[string](codec.String{})
	obsList := syncwire.NewList[string](codec.String{})
	obsSet := syncwire.NewSet[string](codec.String{})

	var authority, observer *syncwire.Syncer
	authEp := hub.Attach("authority", func(peer string, data []byte) {
		authority.Handler()(peer, data)
	})
	obsEp := hub.Attach("observer", func(peer string, data []byte) {
		observer.Handler()(peer, data)
	})
	authority = syncwire.NewSyncer(authEp, syncwire.SyncerOptions{Log: log})
	observer = syncwire.NewSyncer(obsEp, syncwire.SyncerOptions{Log: log})

	for _, reg := range []struct {
		s    *syncwire.Syncer
		list *syncwire.List[string]
		set  *syncwire.Set[string]
	}{{authority, authList, authSet}, {observer, obsList, obsSet}} {
		if err := reg.s.Register("demo.list", reg.list); err != nil {
			panic(err)
		}
		if err := reg.s.Register("demo.set", reg.set); err != nil {
			panic(err)
		}
	}

	obsList.OnChange(func(ev syncwire.Event[string]) {
		fmt.Printf("  observer saw %s index=%d item=%q prev=%q\n", ev.Op, ev.Index, ev.Item, ev.Prev)
	})

	authority.AddPeer("observer")
	authority.Tick()

	help()
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			} else {
				continue
			}
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		args := strings.Split(line, " ")
		cmd := args[0]
		args = args[1:]
		err = nil
		switch cmd {
		case "help":
			help()
		case "exit", "quit":
			os.Exit(0)
		case "add":
			if len(args) < 1 {
				err = fmt.Errorf("usage: add <value>")
				break
			}
			err = authList.Add(strings.Join(args, " "))
		case "insert":
			if len(args) < 2 {
				err = fmt.Errorf("usage: insert <index> <value>")
				break
			}
			var i int
			if i, err = parseIndex(args[0]); err == nil {
				err = authList.Insert(i, strings.Join(args[1:], " "))
			}
		case "set":
			if len(args) < 2 {
				err = fmt.Errorf("usage: set <index> <value>")
				break
			}
			var i int
			if i, err = parseIndex(args[0]); err == nil {
				err = authList.Set(i, strings.Join(args[1:], " "))
			}
		case "rm":
			if len(args) < 1 {
				err = fmt.Errorf("usage: rm <index>")
				break
			}
			var i int
			if i, err = parseIndex(args[0]); err == nil {
				err = authList.RemoveAt(i)
			}
		case "clear":
			err = authList.Clear()
		case "sadd":
			if len(args) < 1 {
				err = fmt.Errorf("usage: sadd <value>")
				break
			}
			err = authSet.Add(strings.Join(args, " "))
		case "srm":
			if len(args) < 1 {
				err = fmt.Errorf("usage: srm <value>")
				break
			}
			err = authSet.Remove(strings.Join(args, " "))
		case "sclear":
			err = authSet.Clear()
		case "show":
			fmt.Printf("authority list %v set %v\n", authList.Values(), authSet.Values())
			fmt.Printf("observer  list %v set %v\n", obsList.Values(), obsSet.Values())
		default:
			_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
		}

		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error executing %s: %s\n", cmd, err.Error())
		}
		authority.Tick()
	}
}
