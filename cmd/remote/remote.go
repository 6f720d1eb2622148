// Package remote exposes a notus.DB over net/rpc so cmd/client and any
// other net/rpc caller can reach it across a TCP connection.
package remote

import (
	"net"
	"net/rpc"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lx7/notus"
)

// DBRemote is the net/rpc service registered as "DB".
type DBRemote struct {
	db  *notus.DB
	log *zap.Logger
}

type GetArgs struct{ Key []byte }
type PutArgs struct{ Key, Value []byte }
type DeleteArgs struct{ Key []byte }
type PrefixArgs struct{ Prefix []byte }
type RangeArgs struct {
	From, To                   []byte
	FromInclusive, ToInclusive bool
}

func (r *DBRemote) Get(args *GetArgs, reply *[]byte) error {
	val, err := r.db.Get(args.Key)
	if err != nil {
		return err
	}
	*reply = val
	return nil
}

func (r *DBRemote) Put(args *PutArgs, _ *struct{}) error {
	return r.db.Put(args.Key, args.Value)
}

func (r *DBRemote) Delete(args *DeleteArgs, _ *struct{}) error {
	return r.db.Delete(args.Key)
}

func (r *DBRemote) Keys(_ *struct{}, reply *[][]byte) error {
	*reply = r.db.Keys()
	return nil
}

func (r *DBRemote) Prefix(args *PrefixArgs, reply *[][]byte) error {
	*reply = r.db.Prefix(args.Prefix)
	return nil
}

func (r *DBRemote) Range(args *RangeArgs, reply *[][]byte) error {
	*reply = r.db.Range(args.From, args.To, args.FromInclusive, args.ToInclusive)
	return nil
}

func (r *DBRemote) Flush(_ *struct{}, _ *struct{}) error {
	return r.db.Flush()
}

func (r *DBRemote) Merge(_ *struct{}, _ *struct{}) error {
	return r.db.Merge()
}

// RegisteredMethods names the net/rpc-callable methods StartRPC
// registers under the "DB" service, in "Service.Method" form. Kept in
// sync with DBRemote's exported method set by hand, since the set
// rarely changes and a reflection-based lister would only be
// rediscovering what this file already declares.
var RegisteredMethods = []string{
	"DB.Get",
	"DB.Put",
	"DB.Delete",
	"DB.Keys",
	"DB.Prefix",
	"DB.Range",
	"DB.Flush",
	"DB.Merge",
}

// StartRPC registers db under the service name "DB", listens on addr,
// and serves in the background. It returns the actual listen address
// and a cleanup func that stops accepting connections and closes db.
func StartRPC(db *notus.DB, addr string, log *zap.Logger) (string, func(), error) {
	remote := &DBRemote{db: db, log: log}

	server := rpc.NewServer()
	if err := server.RegisterName("DB", remote); err != nil {
		return "", nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}

	go acceptLoop(listener, server, log)

	cleanup := func() {
		_ = listener.Close()
		if err := db.Close(); err != nil {
			log.Error("db close", zap.Error(err))
		}
	}
	return listener.Addr().String(), cleanup, nil
}

// acceptLoop is net/rpc.Server.Accept with a connection ID attached to
// each accepted connection's log lines, so a given client's requests
// can be told apart in the server log.
func acceptLoop(listener net.Listener, server *rpc.Server, log *zap.Logger) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Debug("rpc accept stopped", zap.Error(err))
			return
		}
		connID := uuid.NewString()
		log.Debug("rpc connection accepted", zap.String("conn_id", connID), zap.String("remote_addr", conn.RemoteAddr().String()))
		go func() {
			server.ServeConn(conn)
			log.Debug("rpc connection closed", zap.String("conn_id", connID))
		}()
	}
}
