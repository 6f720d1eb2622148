// Command client is an interactive REPL that dials a notus server's
// net/rpc listener and drives it with put/get/del/keys/prefix/merge/
// flush commands. The server's DB.Range method has no REPL command.
package main

import (
	"fmt"
	"io"
	"net/rpc"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/lx7/notus/cmd/remote"
)

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".notus_client_history")
}

// REPL is the interactive command loop.
type REPL struct {
	client *rpc.Client
	liner  *liner.State
}

func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("notus client. Type 'help' for available commands.")

	for {
		line, err := r.liner.Prompt("notus> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])
		args := fields[1:]

		switch cmd {
		case "exit", "quit", "q":
			r.saveHistory()
			return nil
		case "help", "?":
			r.printHelp()
		case "put", "set":
			r.cmdPut(args)
		case "get":
			r.cmdGet(args)
		case "del", "delete":
			r.cmdDelete(args)
		case "keys":
			r.cmdKeys()
		case "prefix":
			r.cmdPrefix(args)
		case "flush":
			r.cmdFlush()
		case "merge":
			r.cmdMerge()
		default:
			fmt.Printf("unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()
	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	cmds := []string{"put", "get", "del", "keys", "prefix", "flush", "merge", "help", "exit"}
	var out []string
	for _, c := range cmds {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}
	return out
}

func (r *REPL) printHelp() {
	fmt.Println(`commands:
  put <key> <value>   store key/value
  get <key>            fetch value for key
  del <key>            delete key
  keys                 list every live key
  prefix <p>           list keys starting with p
  flush                drain the write buffer to disk
  merge                compact immutable segments
  help                 show this message
  exit                 quit`)
}

func (r *REPL) cmdPut(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: put <key> <value>")
		return
	}
	var reply struct{}
	err := r.client.Call("DB.Put", &remote.PutArgs{Key: []byte(args[0]), Value: []byte(args[1])}, &reply)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("OK")
}

func (r *REPL) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: get <key>")
		return
	}
	var val []byte
	err := r.client.Call("DB.Get", &remote.GetArgs{Key: []byte(args[0])}, &val)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(string(val))
}

func (r *REPL) cmdDelete(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: del <key>")
		return
	}
	var reply struct{}
	err := r.client.Call("DB.Delete", &remote.DeleteArgs{Key: []byte(args[0])}, &reply)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("OK")
}

func (r *REPL) cmdKeys() {
	var keys [][]byte
	if err := r.client.Call("DB.Keys", &struct{}{}, &keys); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, k := range keys {
		fmt.Println(string(k))
	}
}

func (r *REPL) cmdPrefix(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: prefix <p>")
		return
	}
	var keys [][]byte
	err := r.client.Call("DB.Prefix", &remote.PrefixArgs{Prefix: []byte(args[0])}, &keys)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, k := range keys {
		fmt.Println(string(k))
	}
}

func (r *REPL) cmdFlush() {
	var reply struct{}
	if err := r.client.Call("DB.Flush", &struct{}{}, &reply); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("OK")
}

func (r *REPL) cmdMerge() {
	var reply struct{}
	if err := r.client.Call("DB.Merge", &struct{}{}, &reply); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("OK")
}

func main() {
	addr := flag.String("addr", "localhost:1729", "notus server RPC address")
	flag.Parse()

	client, err := rpc.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer client.Close()

	repl := &REPL{client: client}
	if err := repl.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
