package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/vault/backend/internal/config"
	"github.com/coldbell/vault/backend/internal/indexer"
)

const vaultsPath = "/api/v1/vaults"

// Store is the read side of the indexer store.
type Store interface {
	ListVaults(ctx context.Context, filter indexer.VaultFilter) ([]indexer.VaultRecord, int, int, error)
	GetVault(ctx context.Context, address string) (indexer.VaultRecord, error)
	GetSyncState(ctx context.Context) (indexer.SyncState, error)
	Close() error
}

type Service struct {
	cfg              config.APIServerConfig
	logger           *slog.Logger
	store            Store
	allowAllOrigins  bool
	allowedOriginSet map[string]struct{}
}

func New(cfg config.APIServerConfig, logger *slog.Logger) (*Service, error) {
	store, err := indexer.NewStore(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return NewWithStore(cfg, store, logger), nil
}

func NewWithStore(cfg config.APIServerConfig, store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	allowAllOrigins := false
	allowedOriginSet := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAllOrigins = true
			continue
		}
		allowedOriginSet[trimmed] = struct{}{}
	}
	if len(allowedOriginSet) == 0 && !allowAllOrigins {
		allowAllOrigins = true
	}

	return &Service{
		cfg:              cfg,
		logger:           logger,
		store:            store,
		allowAllOrigins:  allowAllOrigins,
		allowedOriginSet: allowedOriginSet,
	}
}

// Handler is the full route table wrapped in CORS handling.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc(vaultsPath, s.handleVaults)
	mux.HandleFunc(vaultsPath+"/", s.handleVault)
	mux.HandleFunc("/ws", s.handleWebsocket)
	return s.withCORS(mux)
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close store", "err", err)
		}
	}()

	server := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	s.logger.Info("api-server started",
		"listen_addr", s.cfg.ListenAddr,
		"db_driver", "postgres",
		"allowed_origins", strings.Join(s.cfg.AllowedOrigins, ","),
		"push_interval", s.cfg.PushInterval.String(),
	)

	select {
	case <-ctx.Done():
		s.logger.Info("api-server stopping")
		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shutdown api-server: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	}
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type healthResponse struct {
	OK       bool    `json:"ok"`
	LastSlot *uint64 `json:"last_slot,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}

	response := healthResponse{OK: true}
	state, err := s.store.GetSyncState(r.Context())
	switch {
	case err == nil:
		response.LastSlot = &state.LastSlot
	case !errors.Is(err, indexer.ErrNotFound):
		s.logger.Warn("read sync state failed", "err", err)
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Service) handleVaults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}

	owner, err := parseOptionalPublicKey(r, "owner")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	mint, err := parseOptionalPublicKey(r, "mint")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseOptionalInt(r, "limit", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseOptionalInt(r, "offset", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, normalizedLimit, normalizedOffset, err := s.store.ListVaults(r.Context(), indexer.VaultFilter{
		Owner:  owner,
		Mint:   mint,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("list vaults failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list vaults")
		return
	}

	views := make([]vaultView, 0, len(items))
	for _, item := range items {
		views = append(views, newVaultView(item))
	}
	s.respondJSON(w, http.StatusOK, listResponse[vaultView]{
		Items:  views,
		Limit:  normalizedLimit,
		Offset: normalizedOffset,
	})
}

func (s *Service) handleVault(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}

	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, vaultsPath+"/"), "/")
	if raw == "" || strings.Contains(raw, "/") {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}
	address, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid vault address")
		return
	}

	record, err := s.store.GetVault(r.Context(), address.String())
	if err != nil {
		if errors.Is(err, indexer.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "vault not found")
			return
		}
		s.logger.Error("get vault failed", "address", address, "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to get vault")
		return
	}
	s.respondJSON(w, http.StatusOK, newVaultView(record))
}

func (s *Service) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" && s.isOriginAllowed(origin) {
			if s.allowAllOrigins {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "300")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Service) isOriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	if s.allowAllOrigins {
		return true
	}
	_, ok := s.allowedOriginSet[origin]
	return ok
}

func parseOptionalPublicKey(r *http.Request, key string) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return "", nil
	}
	parsed, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed.String(), nil
}

func parseOptionalInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func (s *Service) respondMethodNotAllowed(w http.ResponseWriter) {
	s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Service) respondError(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, errorResponse{Error: message})
}

func (s *Service) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write JSON response", "err", err)
	}
}
