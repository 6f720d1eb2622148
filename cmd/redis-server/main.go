// Command redis-server exposes a notus datastore over the Redis RESP
// wire protocol, so it can be driven with standard tools like
// redis-cli and redis-benchmark.
//
// Protocol reference: https://redis.io/docs/reference/protocol-spec/
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/lx7/notus"
)

func main() {
	dbPath := flag.String("path", "./redis-data", "path to data directory")
	addr := flag.String("addr", ":6379", "RESP listen address")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer log.Sync()

	db, err := notus.Open(*dbPath)
	if err != nil {
		log.Fatal("open datastore", zap.Error(err))
	}
	defer db.Close()

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal("listen", zap.Error(err))
	}
	defer listener.Close()

	log.Info("notus RESP server listening", zap.String("addr", *addr))

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Error("accept", zap.Error(err))
			continue
		}
		go handleConnection(conn, db, log)
	}
}

// handleConnection processes a single client connection using the
// Redis RESP protocol.
//
// Example RESP command, SET key value:
// *3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n
func handleConnection(conn net.Conn, db *notus.DB, log *zap.Logger) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	defer writer.Flush()

	for {
		cmd, err := parseRESP(reader)
		if err != nil {
			if err == io.EOF {
				return
			}
			log.Debug("parse error", zap.Error(err))
			writer.WriteString(writeError("ERR parse error"))
			continue
		}

		response := executeCommand(db, cmd)

		if _, err := writer.WriteString(response); err != nil {
			log.Debug("write error", zap.Error(err))
			return
		}
		if err := writer.Flush(); err != nil {
			log.Debug("flush error", zap.Error(err))
			return
		}
	}
}

// parseRESP reads one RESP array-of-bulk-strings command.
func parseRESP(reader *bufio.Reader) ([]string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) == 0 || line[0] != '*' {
		return nil, errors.New("expected array")
	}

	length, err := strconv.Atoi(line[1:])
	if err != nil {
		return nil, fmt.Errorf("invalid array length: %w", err)
	}

	args := make([]string, length)
	for i := 0; i < length; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) == 0 || line[0] != '$' {
			return nil, errors.New("expected bulk string")
		}

		strLen, err := strconv.Atoi(line[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid string length: %w", err)
		}
		if strLen == -1 {
			args[i] = ""
			continue
		}

		data := make([]byte, strLen+2)
		if _, err := io.ReadFull(reader, data); err != nil {
			return nil, err
		}
		args[i] = string(data[:strLen])
	}

	return args, nil
}

// executeCommand runs one parsed command against db and returns a
// RESP-formatted response.
//
// Supported: PING, SET, GET, DEL, EXISTS.
func executeCommand(db *notus.DB, args []string) string {
	if len(args) == 0 {
		return writeError("ERR empty command")
	}

	switch strings.ToUpper(args[0]) {
	case "PING":
		return writeBulkString("PONG")

	case "SET":
		if len(args) != 3 {
			return writeError("ERR wrong number of arguments for 'SET' command")
		}
		if err := db.Put([]byte(args[1]), []byte(args[2])); err != nil {
			return writeError(fmt.Sprintf("ERR %v", err))
		}
		return writeSimpleString("OK")

	case "GET":
		if len(args) != 2 {
			return writeError("ERR wrong number of arguments for 'GET' command")
		}
		value, err := db.Get([]byte(args[1]))
		if err != nil {
			if errors.Is(err, notus.ErrKeyNotFound) {
				return writeNull()
			}
			return writeError(fmt.Sprintf("ERR %v", err))
		}
		return writeBulkString(string(value))

	case "DEL":
		if len(args) != 2 {
			return writeError("ERR wrong number of arguments for 'DEL' command")
		}
		key := []byte(args[1])
		existed := db.Contains(key)
		if err := db.Delete(key); err != nil {
			return writeError(fmt.Sprintf("ERR %v", err))
		}
		if existed {
			return writeInteger(1)
		}
		return writeInteger(0)

	case "EXISTS":
		if len(args) != 2 {
			return writeError("ERR wrong number of arguments for 'EXISTS' command")
		}
		if db.Contains([]byte(args[1])) {
			return writeInteger(1)
		}
		return writeInteger(0)

	default:
		return writeError(fmt.Sprintf("ERR unknown command '%s'", args[0]))
	}
}

func writeSimpleString(s string) string { return fmt.Sprintf("+%s\r\n", s) }
func writeBulkString(s string) string   { return fmt.Sprintf("$%d\r\n%s\r\n", len(s), s) }
func writeInteger(i int) string         { return fmt.Sprintf(":%d\r\n", i) }
func writeNull() string                 { return "$-1\r\n" }
func writeError(msg string) string      { return fmt.Sprintf("-%s\r\n", msg) }
