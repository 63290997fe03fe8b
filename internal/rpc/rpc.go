// Package rpc exposes spec.md §6's four unary RPCs (query, exec, commit,
// validate) as chi-routed JSON-over-HTTP handlers served over a Unix
// domain socket. Grounded on core/virtual_machine.go's mux.NewRouter() +
// single "/execute" HTTP handler + golang.org/x/time/rate limiter
// middleware: the router is swapped for chi (already a teacher
// dependency) since this repository's RPC surface is request/response
// only, never streaming, and chi is the primary router this codebase
// otherwise uses (see SPEC_FULL.md §6 for why JSON-over-HTTP replaces the
// spec's gRPC framing).
package rpc

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"execution-engine/internal/engine"
	"execution-engine/internal/history"
	"execution-engine/pkg/key"
	"execution-engine/pkg/transform"
)

// Server wires an engine.Engine behind the four RPC handlers.
type Server struct {
	eng *engine.Engine
	log *logrus.Logger
}

// NewServer constructs a Server. A nil logger disables logging.
func NewServer(eng *engine.Engine, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.PanicLevel)
	}
	return &Server{eng: eng, log: log}
}

// limiter is shared across requests, mirroring core/virtual_machine.go's
// package-level rate.NewLimiter(200, 100).
func rateLimit(rps, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Router builds the chi mux serving the four RPCs under rate limiting.
func (s *Server) Router(rateLimitRPS, rateLimitBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(rateLimit(rateLimitRPS, rateLimitBurst))
	r.Post("/query", s.handleQuery)
	r.Post("/exec", s.handleExec)
	r.Post("/commit", s.handleCommit)
	r.Post("/validate", s.handleValidate)
	return r
}

func (s *Server) logOutcome(method string, outcome string) {
	s.log.WithFields(logrus.Fields{"rpc": method, "outcome": outcome}).Info("rpc: handled")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeHex(s string) ([]byte, error) { return hex.DecodeString(s) }

// ---------------------------------------------------------------------
// query
// ---------------------------------------------------------------------

type queryRequest struct {
	StateHash string   `json:"state_hash"`
	BaseKey   string   `json:"base_key"`
	Path      []string `json:"path"`
}

type queryResponse struct {
	Success bool   `json:"success,omitempty"`
	Value   string `json:"value,omitempty"`
	Failure string `json:"failure,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, queryResponse{Failure: err.Error()})
		return
	}

	root, err := decodeRoot(req.StateHash)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, queryResponse{Failure: err.Error()})
		return
	}
	baseKey, err := decodeKey(req.BaseKey)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, queryResponse{Failure: err.Error()})
		return
	}

	res, err := s.eng.Query(root, baseKey, req.Path)
	if err != nil {
		s.logOutcome("query", "error")
		writeJSON(w, http.StatusInternalServerError, queryResponse{Failure: err.Error()})
		return
	}
	if !res.Found {
		s.logOutcome("query", "not_found")
		writeJSON(w, http.StatusOK, queryResponse{Failure: "value not found at " + res.PathReached})
		return
	}
	s.logOutcome("query", "success")
	writeJSON(w, http.StatusOK, queryResponse{Success: true, Value: hex.EncodeToString(res.Value.ToBytes())})
}

// ---------------------------------------------------------------------
// exec
// ---------------------------------------------------------------------

type deployWire struct {
	Address     string   `json:"address"`
	SessionCode string   `json:"session_code"`
	Args        string   `json:"args"`
	PaymentCode string   `json:"payment_code"`
	GasLimit    uint64   `json:"gas_limit"`
	Nonce       uint64   `json:"nonce"`
	Timestamp   uint64   `json:"timestamp"`
	Approvals   []string `json:"approvals"`
}

type execRequest struct {
	ParentStateHash string       `json:"parent_state_hash"`
	Deploys         []deployWire `json:"deploys"`
	ProtocolVersion uint32       `json:"protocol_version"`
}

type deployResultWire struct {
	Kind      string `json:"kind"`
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`
	Cost      uint64 `json:"cost"`
}

type execResponse struct {
	Kind        string             `json:"kind"`
	Results     []deployResultWire `json:"results,omitempty"`
	NewRoot     string             `json:"new_root,omitempty"`
	MissingRoot string             `json:"missing_root,omitempty"`
	Failure     string             `json:"failure,omitempty"`
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, execResponse{Failure: err.Error()})
		return
	}

	parent, err := decodeRoot(req.ParentStateHash)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, execResponse{Failure: err.Error()})
		return
	}

	deploys := make([]engine.Deploy, 0, len(req.Deploys))
	for _, d := range req.Deploys {
		dep, err := decodeDeploy(d)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, execResponse{Failure: err.Error()})
			return
		}
		deploys = append(deploys, dep)
	}

	res, err := s.eng.Exec(parent, deploys)
	if err != nil {
		s.logOutcome("exec", "error")
		writeJSON(w, http.StatusInternalServerError, execResponse{Failure: err.Error()})
		return
	}

	if res.Kind == engine.ExecMissingParent {
		s.logOutcome("exec", "missing_parent")
		writeJSON(w, http.StatusOK, execResponse{Kind: "MissingParent", MissingRoot: hex.EncodeToString(res.MissingRoot[:])})
		return
	}

	out := make([]deployResultWire, 0, len(res.Results))
	for _, dr := range res.Results {
		wire := deployResultWire{Cost: dr.Cost}
		if dr.Kind == engine.DeploySuccess {
			wire.Kind = "Success"
		} else {
			wire.Kind = "Error"
			wire.ErrorKind = dr.ErrorKind
			wire.Message = dr.Message
		}
		out = append(out, wire)
	}
	s.logOutcome("exec", "success")
	writeJSON(w, http.StatusOK, execResponse{Kind: "Success", Results: out, NewRoot: hex.EncodeToString(res.NewRoot[:])})
}

func decodeDeploy(d deployWire) (engine.Deploy, error) {
	addr, err := decodeAddr32(d.Address)
	if err != nil {
		return engine.Deploy{}, err
	}
	session, err := decodeHex(d.SessionCode)
	if err != nil {
		return engine.Deploy{}, err
	}
	args, err := decodeHex(d.Args)
	if err != nil {
		return engine.Deploy{}, err
	}
	payment, err := decodeHex(d.PaymentCode)
	if err != nil {
		return engine.Deploy{}, err
	}
	approvals := make([][32]byte, 0, len(d.Approvals))
	for _, a := range d.Approvals {
		addr32, err := decodeAddr32(a)
		if err != nil {
			return engine.Deploy{}, err
		}
		approvals = append(approvals, addr32)
	}
	return engine.Deploy{
		Address:     addr,
		SessionCode: session,
		Args:        args,
		PaymentCode: payment,
		GasLimit:    d.GasLimit,
		Nonce:       d.Nonce,
		Timestamp:   d.Timestamp,
		Approvals:   approvals,
	}, nil
}

// ---------------------------------------------------------------------
// commit
// ---------------------------------------------------------------------

type transformEntryWire struct {
	Key        string            `json:"key"`
	Kind       string            `json:"kind"`
	Int32      int32             `json:"int32,omitempty"`
	UInt512    string            `json:"uint512,omitempty"`
	WriteVal   string            `json:"write_value,omitempty"`
	AddKeys    map[string]string `json:"add_keys,omitempty"`
	FailureMsg string            `json:"failure_msg,omitempty"`
}

type commitRequest struct {
	PrestateHash string               `json:"prestate_hash"`
	Effects      []transformEntryWire `json:"effects"`
}

type commitResponse struct {
	Kind             string   `json:"kind"`
	PostStateHash    string   `json:"post_state_hash,omitempty"`
	BondedValidators []string `json:"bonded_validators,omitempty"`
	Failure          string   `json:"failure,omitempty"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, commitResponse{Failure: err.Error()})
		return
	}

	prestate, err := decodeRoot(req.PrestateHash)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, commitResponse{Failure: err.Error()})
		return
	}

	effect := transform.NewExecutionEffect()
	for _, te := range req.Effects {
		k, err := decodeKey(te.Key)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, commitResponse{Failure: err.Error()})
			return
		}
		t, op, err := decodeTransform(te)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, commitResponse{Failure: err.Error()})
			return
		}
		effect.Record(k, op, t)
	}

	res, err := s.eng.CommitEffects(prestate, effect)
	if err != nil {
		s.logOutcome("commit", "error")
		writeJSON(w, http.StatusInternalServerError, commitResponse{Failure: err.Error()})
		return
	}

	switch res.Kind {
	case history.CommitSuccess:
		s.logOutcome("commit", "success")
		writeJSON(w, http.StatusOK, commitResponse{Kind: "Success", PostStateHash: hex.EncodeToString(res.NewRoot[:])})
	case history.CommitRootNotFound:
		s.logOutcome("commit", "missing_prestate")
		writeJSON(w, http.StatusOK, commitResponse{Kind: "MissingPrestate"})
	default:
		s.logOutcome("commit", "failed_transform")
		writeJSON(w, http.StatusOK, commitResponse{Kind: "FailedTransform", Failure: res.Message})
	}
}

func decodeTransform(te transformEntryWire) (transform.Transform, transform.Op, error) {
	switch te.Kind {
	case "Identity":
		return transform.Identity(), transform.OpRead, nil
	case "Write":
		raw, err := decodeHex(te.WriteVal)
		if err != nil {
			return transform.Transform{}, 0, err
		}
		v, _, err := valueFromBytes(raw)
		if err != nil {
			return transform.Transform{}, 0, err
		}
		return transform.Write(v), transform.OpWrite, nil
	case "AddInt32":
		return transform.AddInt32(te.Int32), transform.OpAdd, nil
	case "AddUInt512":
		u, ok := parseUInt512(te.UInt512)
		if !ok {
			return transform.Transform{}, 0, errBadUInt512
		}
		return transform.AddUInt512(u), transform.OpAdd, nil
	case "AddKeys":
		m := make(map[string]key.Key, len(te.AddKeys))
		for name, ks := range te.AddKeys {
			k, err := decodeKey(ks)
			if err != nil {
				return transform.Transform{}, 0, err
			}
			m[name] = k
		}
		return transform.AddKeysOp(m), transform.OpAdd, nil
	default:
		return transform.Transform{}, 0, errUnknownTransformKind
	}
}

// ---------------------------------------------------------------------
// validate
// ---------------------------------------------------------------------

type validateRequest struct {
	PaymentCode string `json:"payment_code"`
	SessionCode string `json:"session_code"`
}

type validateResponse struct {
	Success bool   `json:"success"`
	Failure string `json:"failure,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, validateResponse{Failure: err.Error()})
		return
	}
	payment, err := decodeHex(req.PaymentCode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, validateResponse{Failure: err.Error()})
		return
	}
	session, err := decodeHex(req.SessionCode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, validateResponse{Failure: err.Error()})
		return
	}

	if err := s.eng.Validate(payment, session); err != nil {
		s.logOutcome("validate", "failure")
		writeJSON(w, http.StatusOK, validateResponse{Failure: err.Error()})
		return
	}
	s.logOutcome("validate", "success")
	writeJSON(w, http.StatusOK, validateResponse{Success: true})
}
