package taostest

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	taosws "github.com/taosdata/taosws-go"
)

// Result is one canned statement outcome served by the fake adapter.
type Result struct {
	Fields       []taosws.Field
	Precision    taosws.Precision
	Rows         [][]any
	AffectedRows int
	IsUpdate     bool
}

// Server is an in-process stand-in for the websocket adapter. It speaks just
// enough of the query subprotocol for driver tests: conn, query, fetch,
// fetch_block and free_result.
type Server struct {
	srv *httptest.Server

	// User/Password are the accepted plain credentials. Empty means the
	// root/taosdata defaults.
	User     string
	Password string
	// Token, when set, switches the server to token auth: the URL must carry
	// token=<Token> and handshake credentials are ignored.
	Token string
	// BlockRows caps rows per served block; 0 serves each result as one block.
	BlockRows int

	// Handle decides the outcome of every statement.
	Handle func(sql string) (*Result, *taosws.Error)

	mu       sync.Mutex
	conns    int
	queries  []string
	prepared []string
}

// NewServer starts the fake adapter with the given statement handler.
func NewServer(handle func(sql string) (*Result, *taosws.Error)) *Server {
	s := &Server{Handle: handle}
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/ws", s.serveWs)
	mux.HandleFunc("/rest/stmt", s.serveStmt)
	s.srv = httptest.NewServer(mux)
	return s
}

// DSN returns a plain-credential descriptor pointing at the server.
func (s *Server) DSN() string {
	return "ws://" + s.Addr()
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return strings.TrimPrefix(s.srv.URL, "http://")
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.Close()
}

// ConnCount returns how many websocket sessions have been opened.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Queries returns every statement the server has seen, in order.
func (s *Server) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Prepared returns every prepared-statement SQL the server has seen.
func (s *Server) Prepared() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prepared...)
}

var upgrader = websocket.Upgrader{}

type wireRequest struct {
	ReqID  uint64          `json:"req_id"`
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args"`
}

type wireConnArgs struct {
	User     string `json:"user"`
	Password string `json:"password"`
	DB       string `json:"db"`
}

type wireResultArgs struct {
	ID uint64 `json:"id"`
}

type wireQueryArgs struct {
	SQL string `json:"sql"`
}

type pendingResult struct {
	result *Result
	next   int // index of the first unserved row
	staged [][]any
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.conns++
	s.mu.Unlock()

	tokenOK := s.Token == "" || r.URL.Query().Get("token") == s.Token

	results := map[uint64]*pendingResult{}
	var nextID uint64

	for {
		var req wireRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		switch req.Action {
		case "conn":
			var args wireConnArgs
			_ = json.Unmarshal(req.Args, &args)
			if !tokenOK || !s.credentialsOK(args) {
				s.reply(conn, req, map[string]any{"code": 0x0357, "message": "Authentication failure"})
				continue
			}
			s.reply(conn, req, map[string]any{"code": 0, "message": ""})

		case "query":
			var args wireQueryArgs
			_ = json.Unmarshal(req.Args, &args)
			s.mu.Lock()
			s.queries = append(s.queries, args.SQL)
			s.mu.Unlock()

			result, qerr := s.Handle(args.SQL)
			if qerr != nil {
				s.reply(conn, req, map[string]any{"code": qerr.Code, "message": qerr.Message})
				continue
			}
			nextID++
			results[nextID] = &pendingResult{result: result}

			names := make([]string, 0, len(result.Fields))
			types := make([]uint8, 0, len(result.Fields))
			lens := make([]uint32, 0, len(result.Fields))
			for _, field := range result.Fields {
				names = append(names, field.Name)
				types = append(types, uint8(field.Type))
				lens = append(lens, field.Bytes)
			}
			s.reply(conn, req, map[string]any{
				"code": 0, "message": "",
				"id":             nextID,
				"is_update":      result.IsUpdate,
				"affected_rows":  result.AffectedRows,
				"fields_count":   len(result.Fields),
				"fields_names":   names,
				"fields_types":   types,
				"fields_lengths": lens,
				"precision":      int(result.Precision),
			})

		case "fetch":
			var args wireResultArgs
			_ = json.Unmarshal(req.Args, &args)
			pending := results[args.ID]
			if pending == nil {
				s.reply(conn, req, map[string]any{"code": 0xFFFF, "message": "unknown result id"})
				continue
			}
			remaining := len(pending.result.Rows) - pending.next
			if remaining <= 0 {
				s.reply(conn, req, map[string]any{"code": 0, "message": "", "completed": true})
				continue
			}
			n := remaining
			if s.BlockRows > 0 && n > s.BlockRows {
				n = s.BlockRows
			}
			pending.staged = pending.result.Rows[pending.next : pending.next+n]
			pending.next += n
			s.reply(conn, req, map[string]any{"code": 0, "message": "", "completed": false, "rows": n})

		case "fetch_block":
			var args wireResultArgs
			_ = json.Unmarshal(req.Args, &args)
			pending := results[args.ID]
			if pending == nil || pending.staged == nil {
				s.reply(conn, req, map[string]any{"code": 0xFFFF, "message": "no block staged"})
				continue
			}
			frame := binary.LittleEndian.AppendUint64(nil, args.ID)
			frame = append(frame, BuildRawBlock(pending.result.Fields, pending.staged)...)
			pending.staged = nil
			_ = conn.WriteMessage(websocket.BinaryMessage, frame)

		case "free_result":
			var args wireResultArgs
			_ = json.Unmarshal(req.Args, &args)
			delete(results, args.ID)
			s.reply(conn, req, map[string]any{"code": 0, "message": ""})

		default:
			s.reply(conn, req, map[string]any{"code": 0xFFFF, "message": "unknown action"})
		}
	}
}

type wireStmtArgs struct {
	StmtID  uint64  `json:"stmt_id"`
	SQL     string  `json:"sql"`
	Name    string  `json:"name"`
	Tags    []any   `json:"tags"`
	Columns [][]any `json:"columns"`
}

type pendingStmt struct {
	sql     string
	table   string
	tags    []any
	bound   int
	batched int
}

// serveStmt speaks the statement subprotocol: init, prepare, set_table_name,
// set_tags, bind, add_batch, exec and close. Exec reports the number of
// batched rows as the affected count.
func (s *Server) serveStmt(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.conns++
	s.mu.Unlock()

	tokenOK := s.Token == "" || r.URL.Query().Get("token") == s.Token

	stmts := map[uint64]*pendingStmt{}
	var nextID uint64

	for {
		var req wireRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		var args wireStmtArgs
		_ = json.Unmarshal(req.Args, &args)

		if req.Action == "conn" {
			var connArgs wireConnArgs
			_ = json.Unmarshal(req.Args, &connArgs)
			if !tokenOK || !s.credentialsOK(connArgs) {
				s.reply(conn, req, map[string]any{"code": 0x0357, "message": "Authentication failure"})
				continue
			}
			s.reply(conn, req, map[string]any{"code": 0, "message": ""})
			continue
		}

		if req.Action == "init" {
			nextID++
			stmts[nextID] = &pendingStmt{}
			s.reply(conn, req, map[string]any{"code": 0, "message": "", "stmt_id": nextID})
			continue
		}

		stmt := stmts[args.StmtID]
		if stmt == nil {
			s.reply(conn, req, map[string]any{"code": 0xFFFF, "message": "unknown stmt id", "stmt_id": args.StmtID})
			continue
		}

		switch req.Action {
		case "prepare":
			stmt.sql = args.SQL
			s.mu.Lock()
			s.prepared = append(s.prepared, args.SQL)
			s.mu.Unlock()
			s.reply(conn, req, map[string]any{"code": 0, "message": "", "stmt_id": args.StmtID})

		case "set_table_name":
			stmt.table = args.Name
			s.reply(conn, req, map[string]any{"code": 0, "message": "", "stmt_id": args.StmtID})

		case "set_tags":
			stmt.tags = args.Tags
			s.reply(conn, req, map[string]any{"code": 0, "message": "", "stmt_id": args.StmtID})

		case "bind":
			if stmt.sql == "" {
				s.reply(conn, req, map[string]any{"code": 0xFFFF, "message": "bind before prepare", "stmt_id": args.StmtID})
				continue
			}
			if len(args.Columns) > 0 {
				stmt.bound += len(args.Columns[0])
			}
			s.reply(conn, req, map[string]any{"code": 0, "message": "", "stmt_id": args.StmtID})

		case "add_batch":
			stmt.batched += stmt.bound
			stmt.bound = 0
			s.reply(conn, req, map[string]any{"code": 0, "message": "", "stmt_id": args.StmtID})

		case "exec":
			affected := stmt.batched + stmt.bound
			stmt.batched, stmt.bound = 0, 0
			s.reply(conn, req, map[string]any{"code": 0, "message": "", "stmt_id": args.StmtID, "affected": affected})

		case "close":
			delete(stmts, args.StmtID)
			s.reply(conn, req, map[string]any{"code": 0, "message": "", "stmt_id": args.StmtID})

		default:
			s.reply(conn, req, map[string]any{"code": 0xFFFF, "message": "unknown action", "stmt_id": args.StmtID})
		}
	}
}

func (s *Server) credentialsOK(args wireConnArgs) bool {
	if s.Token != "" {
		return true
	}
	user, password := s.User, s.Password
	if user == "" {
		user = "root"
	}
	if password == "" {
		password = "taosdata"
	}
	return args.User == user && args.Password == password
}

func (s *Server) reply(conn *websocket.Conn, req wireRequest, fields map[string]any) {
	fields["action"] = req.Action
	fields["req_id"] = req.ReqID
	_ = conn.WriteJSON(fields)
}

// UpdateResult is a convenience for update-statement outcomes.
func UpdateResult(affected int) *Result {
	return &Result{IsUpdate: true, AffectedRows: affected}
}
