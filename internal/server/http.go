package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"switchyard/internal/api"
)

const maxRequestBytes = 4 << 20

// errorBody is the JSON shape of every HTTP API error.
type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAPIHandler returns the HTTP JSON API.
//
//	POST   /v1/invoke
//	GET    /v1/services?tag=&kind=&required=
//	GET    /v1/services/{name}
//	PUT    /v1/services/{name}
//	DELETE /v1/services/{name}
//	POST   /v1/services/{name}/probe
//	POST   /v1/discovery/trigger
//	GET    /v1/discovery/status
func NewAPIHandler(deps Deps) http.Handler {
	s := &service{deps: deps}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/invoke", s.handleInvoke)
	mux.HandleFunc("GET /v1/services", s.handleList)
	mux.HandleFunc("GET /v1/services/{name}", s.handleGet)
	mux.HandleFunc("PUT /v1/services/{name}", s.handleRegister)
	mux.HandleFunc("DELETE /v1/services/{name}", s.handleDeregister)
	mux.HandleFunc("POST /v1/services/{name}/probe", s.handleProbe)
	mux.HandleFunc("POST /v1/discovery/trigger", s.handleTrigger)
	mux.HandleFunc("GET /v1/discovery/status", s.handleDiscoveryStatus)

	return mux
}

func (s *service) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req api.RouteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.invoke(r.Context(), req))
}

func (s *service) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := api.ListFilter{
		Tags: q["tag"],
		Kind: api.ServiceKind(q.Get("kind")),
	}
	if v := q.Get("required"); v != "" {
		required, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, &InvalidRequestError{Message: "required must be a boolean"})
			return
		}
		filter.RequiredOnly = required
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		writeError(w, &InvalidRequestError{Message: "unknown kind " + string(filter.Kind)})
		return
	}
	writeJSON(w, http.StatusOK, s.list(filter))
}

func (s *service) handleGet(w http.ResponseWriter, r *http.Request) {
	status, err := s.get(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *service) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg api.ServiceRegistration
	if err := decodeBody(r, &reg); err != nil {
		writeError(w, err)
		return
	}
	name := r.PathValue("name")
	if reg.Name == "" {
		reg.Name = name
	}
	if reg.Name != name {
		writeError(w, &InvalidRequestError{Message: "name in body does not match the path"})
		return
	}

	res, err := s.register(reg)
	if err != nil {
		writeError(w, err)
		return
	}
	code := http.StatusOK
	if res.Result == "created" {
		code = http.StatusCreated
	}
	writeJSON(w, code, res)
}

func (s *service) handleDeregister(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deregister(r.PathValue("name")))
}

func (s *service) handleProbe(w http.ResponseWriter, r *http.Request) {
	rec, err := s.probe(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *service) handleTrigger(w http.ResponseWriter, r *http.Request) {
	summary, err := s.triggerDiscovery(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *service) handleDiscoveryStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.discoveryStatus())
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &InvalidRequestError{Message: "invalid JSON body: " + err.Error()}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and a caller-safe body.
func writeError(w http.ResponseWriter, err error) {
	var body errorBody
	code := http.StatusInternalServerError

	var invalid *InvalidRequestError
	if errors.As(err, &invalid) {
		code = http.StatusBadRequest
		body.Error.Kind = "InvalidRequest"
		body.Error.Message = invalid.Message
		writeJSON(w, code, body)
		return
	}

	kind := api.KindOf(err)
	switch kind {
	case api.ErrorKindNotFound:
		code = http.StatusNotFound
	case api.ErrorKindUnavailable:
		code = http.StatusServiceUnavailable
	case api.ErrorKindTimeout:
		code = http.StatusGatewayTimeout
	case api.ErrorKindBackendError, api.ErrorKindProtocolError:
		code = http.StatusBadGateway
	}
	body.Error.Kind = string(kind)
	body.Error.Message = api.SafeMessage(err)
	writeJSON(w, code, body)
}
