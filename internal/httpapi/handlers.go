package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/quiz-battle-backend/internal/auth"
	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/hub"
	"github.com/DoyleJ11/quiz-battle-backend/internal/room"
	"github.com/DoyleJ11/quiz-battle-backend/internal/store"
	"github.com/DoyleJ11/quiz-battle-backend/internal/ws"
)

const maxCodeAttempts = 10

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createRoomRequest struct {
	Name             string `json:"name"`
	Visibility       string `json:"visibility"`
	TimeLimitSeconds int    `json:"time_limit_seconds"`
	QuestionCount    int    `json:"question_count"`
	QuestionSetRef   string `json:"question_set_ref"`
}

func (req *createRoomRequest) validate() error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 64 {
		return errors.New("name must be 1-64 characters")
	}
	switch req.Visibility {
	case "":
		req.Visibility = string(engine.VisibilityPublic)
	case string(engine.VisibilityPublic), string(engine.VisibilityPrivate):
	default:
		return errors.New("visibility must be public or private")
	}
	if req.TimeLimitSeconds < 5 || req.TimeLimitSeconds > 120 {
		return errors.New("time_limit_seconds must be within 5..120")
	}
	if req.QuestionCount < 1 || req.QuestionCount > 50 {
		return errors.New("question_count must be within 1..50")
	}
	if req.QuestionSetRef == "" {
		req.QuestionSetRef = "general"
	}
	return nil
}

// CreateRoom persists a waiting room hosted by the caller and starts it.
func CreateRoom(h *hub.Hub, st store.Store, rules engine.Rules, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, ok := auth.IdentityFrom(r.Context())
		if !ok {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := req.validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var code string
		for attempt := 0; code == "" && attempt < maxCodeAttempts; attempt++ {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			_, _, err = st.GetRoom(r.Context(), c)
			switch {
			case errors.Is(err, engine.ErrNotFound):
				code = c
			case err != nil:
				log.Error("room lookup failed", zap.Error(err))
				http.Error(w, "failed to create room", http.StatusInternalServerError)
				return
			default:
				log.Debug("collision on code, regenerating", zap.String("code", c))
			}
		}
		if code == "" {
			http.Error(w, "failed to generate code", http.StatusInternalServerError)
			return
		}

		state := engine.NewState(engine.Room{
			ID:               code,
			HostID:           host,
			Name:             req.Name,
			Visibility:       engine.Visibility(req.Visibility),
			TimeLimitSeconds: req.TimeLimitSeconds,
			QuestionCount:    req.QuestionCount,
			QuestionSetRef:   req.QuestionSetRef,
		}, rules)
		if _, err := h.Create(r.Context(), state); err != nil {
			log.Error("create room failed", zap.String("room", code), zap.Error(err))
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}
		log.Info("room created", zap.String("room", code), zap.String("host", host))

		writeJSON(w, http.StatusCreated, struct {
			ID string `json:"id"`
		}{ID: code})
	}
}

func ListRooms(st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := ws.OpenRooms(r.Context(), st)
		if err != nil {
			log.Error("list rooms failed", zap.Error(err))
			http.Error(w, "failed to list rooms", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rooms)
	}
}

// GetRoom returns the same snapshot a socket receives as its first frame.
func GetRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rm, err := h.Ensure(r.Context(), id)
		if err != nil {
			if errors.Is(err, engine.ErrNotFound) {
				http.Error(w, "room not found", http.StatusNotFound)
				return
			}
			log.Error("load room failed", zap.String("room", id), zap.Error(err))
			http.Error(w, "failed to load room", http.StatusInternalServerError)
			return
		}
		v, err := rm.View(r.Context())
		if err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, room.Snapshot(v, time.Now()))
	}
}

// DevToken hands out identity tokens. Mounted only in dev mode.
func DevToken(v *auth.Verifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Identity string `json:"identity"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
		}
		if req.Identity == "" {
			req.Identity = uuid.NewString()
		}
		tok, err := v.Issue(req.Identity)
		if err != nil {
			http.Error(w, "failed to issue token", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"identity": req.Identity, "token": tok})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
