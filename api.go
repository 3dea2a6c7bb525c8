package tapfix

import (
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Error codes carried in API error bodies.
const (
	CodeScenarioNotFound = "scenario_not_found"
	CodeTapNotFound      = "tap_not_found"
	CodeMissingTap       = "missing_tap"
	CodeUnknownOption    = "unknown_option"
	CodeUnknownInputType = "unknown_input_type"
	CodeBadRequest       = "bad_request"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal"
)

// maxBodySize bounds request bodies; fixtures are small.
const maxBodySize = 1 << 20

// APIError is the body of every failed API response.
type APIError struct {
	Message string `json:"error"`
	Code    string `json:"code"`
}

// ScenarioResponse is the body returned when a scenario is created.
type ScenarioResponse struct {
	ID string `json:"id"`
}

// TapRequest is the body of a tap creation request.
type TapRequest struct {
	InputType string   `json:"input_type" yaml:"input_type"`
	Options   *Options `json:"options" yaml:"options"`
}

// API represents the HTTP server letting remote step layers drive scenario
// registries.
type API struct {
	scenarios *Scenarios
	format    string
	limiter   *rate.Limiter
	router    chi.Router
	server    *http.Server
	log       *zap.Logger
	mutex     sync.RWMutex
}

// NewAPI returns an initialized API serving s according to cfg.
func NewAPI(s *Scenarios, cfg *ServerConfig, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	api := &API{
		scenarios: s,
		format:    cfg.Output.Format,
		router:    chi.NewRouter(),
		log:       log,
	}
	api.SetRateLimit(cfg.API.RateLimit)
	api.setupHandlers()
	api.server = &http.Server{
		Addr:    cfg.API.Bind,
		Handler: api.router,
	}
	return api
}

// Handler returns the root handler, for tests and embedding.
func (api *API) Handler() http.Handler {
	return api.router
}

// SetRateLimit replaces the rate limiter. A CPS of 0 disables limiting.
func (api *API) SetRateLimit(cfg RateLimitConfig) {
	var limiter *rate.Limiter
	if cfg.CPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.CPS), burst)
	}
	api.mutex.Lock()
	api.limiter = limiter
	api.mutex.Unlock()
}

// Run calls RunForever in a separate goroutine for non-blocking behavior.
func (api *API) Run() {
	go func() {
		HandleFatalError(api.RunForever())
	}()
}

// RunForever listens for requests until stopped. It returns nil once Stop
// has been called.
func (api *API) RunForever() error {
	api.log.Info("API listening", zap.String("bind", api.server.Addr))
	err := api.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop will close down the server and cause Run to exit.
func (api *API) Stop() {
	if err := api.server.Close(); err != nil {
		api.log.Error("Error stopping API", zap.Error(err))
	}
	api.log.Info("API stopped")
}

func (api *API) setupHandlers() {
	r := api.router
	r.Use(api.rateLimit)
	r.Get("/status", api.StatusHandler)
	r.Route("/scenarios", func(r chi.Router) {
		r.Post("/", api.BeginHandler)
		r.Route("/{scenario}", func(r chi.Router) {
			r.Delete("/", api.EndHandler)
			r.Get("/taps", api.DocumentHandler)
			r.Get("/tags", api.TagSetHandler)
			r.Post("/tags", api.AddTagHandler)
			r.Delete("/tags", api.RemoveTagHandler)
			r.Route("/taps/{tap}", func(r chi.Router) {
				r.Put("/", api.AddTapHandler)
				r.Delete("/", api.RemoveTapHandler)
				r.Post("/config", api.AddConfigHandler)
				r.Delete("/config", api.RemoveConfigsHandler)
				r.Post("/filter", api.AddFilterHandler)
				r.Delete("/filter", api.RemoveFiltersHandler)
				r.Post("/tags", api.AddTagHandler)
				r.Delete("/tags", api.RemoveTagHandler)
			})
		})
	})
}

func (api *API) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, request *http.Request) {
		api.mutex.RLock()
		limiter := api.limiter
		api.mutex.RUnlock()
		if limiter != nil && !limiter.Allow() {
			api.writeError(rw, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
			return
		}
		next.ServeHTTP(rw, request)
	})
}

// StatusHandler acts as a basic healthcheck and simply returns 200 OK.
func (api *API) StatusHandler(rw http.ResponseWriter, request *http.Request) {
	fmt.Fprintf(rw, "ok")
}

// BeginHandler starts a new scenario.
func (api *API) BeginHandler(rw http.ResponseWriter, request *http.Request) {
	id, _ := api.scenarios.Begin()
	api.writeJSON(rw, http.StatusCreated, ScenarioResponse{ID: id})
}

// EndHandler discards a scenario.
func (api *API) EndHandler(rw http.ResponseWriter, request *http.Request) {
	if err := api.scenarios.End(chi.URLParam(request, "scenario")); err != nil {
		api.writeFailure(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// DocumentHandler returns the scenario's taps document.
func (api *API) DocumentHandler(rw http.ResponseWriter, request *http.Request) {
	api.apply(rw, request, func(reg *Registry) (*Taps, error) {
		return reg.Taps(), nil
	})
}

// TagSetHandler returns the tags of every tap which has any.
func (api *API) TagSetHandler(rw http.ResponseWriter, request *http.Request) {
	var ts TagSet
	err := api.scenarios.With(chi.URLParam(request, "scenario"), func(reg *Registry) error {
		ts = reg.Taps().TagSet()
		return nil
	})
	if err != nil {
		api.writeFailure(rw, err)
		return
	}
	api.writeJSON(rw, http.StatusOK, ts)
}

// AddTapHandler creates or replaces a tap.
func (api *API) AddTapHandler(rw http.ResponseWriter, request *http.Request) {
	var body TapRequest
	if !api.decode(rw, request, &body) {
		return
	}
	it, err := ParseInputType(body.InputType)
	if err != nil {
		api.writeFailure(rw, err)
		return
	}
	name := chi.URLParam(request, "tap")
	api.apply(rw, request, func(reg *Registry) (*Taps, error) {
		return reg.AddTap(it, name, body.Options.List()...)
	})
}

// RemoveTapHandler deletes a tap.
func (api *API) RemoveTapHandler(rw http.ResponseWriter, request *http.Request) {
	name := chi.URLParam(request, "tap")
	api.apply(rw, request, func(reg *Registry) (*Taps, error) {
		return reg.RemoveTap(name)
	})
}

// AddConfigHandler merges the body into a tap's config.
func (api *API) AddConfigHandler(rw http.ResponseWriter, request *http.Request) {
	var body Options
	if !api.decode(rw, request, &body) {
		return
	}
	name := chi.URLParam(request, "tap")
	api.apply(rw, request, func(reg *Registry) (*Taps, error) {
		return reg.AddConfig(name, body.List()...)
	})
}

// RemoveConfigsHandler deletes the `key` query values from a tap's config.
func (api *API) RemoveConfigsHandler(rw http.ResponseWriter, request *http.Request) {
	name := chi.URLParam(request, "tap")
	keys := request.URL.Query()["key"]
	api.apply(rw, request, func(reg *Registry) (*Taps, error) {
		return reg.RemoveConfigs(name, keys...)
	})
}

// AddFilterHandler merges the body into a tap's filter.
func (api *API) AddFilterHandler(rw http.ResponseWriter, request *http.Request) {
	var body Options
	if !api.decode(rw, request, &body) {
		return
	}
	name := chi.URLParam(request, "tap")
	api.apply(rw, request, func(reg *Registry) (*Taps, error) {
		return reg.AddFilter(name, body.List()...)
	})
}

// RemoveFiltersHandler deletes the `key` query values from a tap's filter.
func (api *API) RemoveFiltersHandler(rw http.ResponseWriter, request *http.Request) {
	name := chi.URLParam(request, "tap")
	keys := request.URL.Query()["key"]
	api.apply(rw, request, func(reg *Registry) (*Taps, error) {
		return reg.RemoveFilters(name, keys...)
	})
}

// AddTagHandler sets tags on one tap, or on all of them when mounted
// directly under the scenario.
func (api *API) AddTagHandler(rw http.ResponseWriter, request *http.Request) {
	var body Options
	if !api.decode(rw, request, &body) {
		return
	}
	tags, err := TagsFrom(&body)
	if err != nil {
		api.writeError(rw, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	target := targetOf(request)
	api.apply(rw, request, func(reg *Registry) (*Taps, error) {
		return reg.AddTag(target, tags...)
	})
}

// RemoveTagHandler deletes the `key` query values from the targeted taps'
// tags.
func (api *API) RemoveTagHandler(rw http.ResponseWriter, request *http.Request) {
	keys := request.URL.Query()["key"]
	target := targetOf(request)
	api.apply(rw, request, func(reg *Registry) (*Taps, error) {
		return reg.RemoveTag(target, keys...)
	})
}

// targetOf picks the tap from the route, or All on the scenario level route.
func targetOf(request *http.Request) Target {
	if name := chi.URLParam(request, "tap"); name != "" {
		return One(name)
	}
	return All()
}

// apply runs fn under the scenario lock and answers with the resulting
// document, encoded before the lock is released.
func (api *API) apply(rw http.ResponseWriter, request *http.Request, fn func(*Registry) (*Taps, error)) {
	format := request.URL.Query().Get("format")
	if format == "" {
		format = api.format
	}
	var doc string
	err := api.scenarios.With(chi.URLParam(request, "scenario"), func(reg *Registry) error {
		taps, err := fn(reg)
		if err != nil {
			return err
		}
		doc, err = taps.Encode(format)
		return err
	})
	if err != nil {
		api.writeFailure(rw, err)
		return
	}
	if format == "yaml" || format == "yml" {
		rw.Header().Set("Content-Type", "application/yaml")
	} else {
		rw.Header().Set("Content-Type", "application/json")
	}
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte(doc))
}

// decode reads a JSON or YAML body into v, keeping option order. It answers
// the request itself on failure.
func (api *API) decode(rw http.ResponseWriter, request *http.Request, v interface{}) bool {
	data, err := ioutil.ReadAll(http.MaxBytesReader(rw, request.Body, maxBodySize))
	if err == nil {
		err = unmarshalDocument(data, v)
	}
	if err != nil {
		api.writeError(rw, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid body: %s", err))
		return false
	}
	return true
}

func (api *API) writeFailure(rw http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, CodeInternal
	switch {
	case errors.Is(err, ErrScenarioNotFound):
		status, code = http.StatusNotFound, CodeScenarioNotFound
	case errors.Is(err, ErrTapNotFound):
		status, code = http.StatusNotFound, CodeTapNotFound
	case errors.Is(err, ErrMissingTap):
		status, code = http.StatusNotFound, CodeMissingTap
	case errors.Is(err, ErrUnknownOption):
		status, code = http.StatusBadRequest, CodeUnknownOption
	case errors.Is(err, ErrUnknownInputType):
		status, code = http.StatusBadRequest, CodeUnknownInputType
	}
	if status == http.StatusInternalServerError {
		api.log.Error("Request failed", zap.Error(err))
	}
	api.writeError(rw, status, code, err.Error())
}

func (api *API) writeError(rw http.ResponseWriter, status int, code, msg string) {
	api.writeJSON(rw, status, APIError{Message: msg, Code: code})
}

func (api *API) writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	asJSON, err := marshalJSON(v)
	if err != nil {
		api.log.Error("Failed to encode response", zap.Error(err))
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_, _ = rw.Write(asJSON)
}
