package exchange

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ImportTrigger odpala cykl importu dla sesji wymiany. Implementuje go
// orchestrator z internal/importer – interfejs trzyma pakiety rozdzielone.
type ImportTrigger interface {
	// TriggerExchange zwraca status "success", "already_in_progress" albo
	// "already_complete". Idempotentny: powtórzony sygnał z 1C nie
	// restartuje trwającego importu.
	TriggerExchange(sessionID string) (status string, err error)
}

// Options konfigurują handler protokołu.
type Options struct {
	Login      string
	Password   string
	CookieName string
	MediaRoot  string
	FileLimit  int64
	ChunkSize  int
	LockWait   time.Duration
	SessionTTL time.Duration
}

// Handler to maszyna stanów protokołu wymiany 1C:
// checkauth → init → file* → import/complete.
type Handler struct {
	log      zerolog.Logger
	opts     Options
	sessions *SessionStore
	trigger  ImportTrigger
}

func NewHandler(log zerolog.Logger, opts Options, trigger ImportTrigger) *Handler {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 2 * time.Hour
	}
	return &Handler{
		log:      log.With().Str("component", "exchange").Logger(),
		opts:     opts,
		sessions: NewSessionStore(opts.SessionTTL),
		trigger:  trigger,
	}
}

func (h *Handler) TempRoot() string   { return filepath.Join(h.opts.MediaRoot, "1c_temp") }
func (h *Handler) ImportRoot() string { return filepath.Join(h.opts.MediaRoot, "1c_import") }

// Register wpina endpoint wymiany pod routerem gin. 1C woła GET i POST
// na ten sam URL, rozróżnia parametr mode.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/exchange/1c", h.handle)
	r.POST("/exchange/1c", h.handle)
}

func (h *Handler) handle(c *gin.Context) {
	mode := c.Query("mode")
	switch mode {
	case "checkauth":
		h.checkAuth(c)
	case "init":
		h.initSession(c)
	case "file":
		h.uploadFile(c)
	case "import", "complete":
		h.triggerImport(c)
	case "query":
		h.query(c)
	default:
		failure(c, http.StatusBadRequest, "Unknown mode")
	}
}

// failure odpowiada w konwencji 1C: "failure\n<powód>". Powód zawsze
// ogólny – szczegóły zostają w logu serwera.
func failure(c *gin.Context, status int, reason string) {
	c.String(status, "failure\n%s", reason)
}

func success(c *gin.Context, lines ...string) {
	body := "success"
	for _, l := range lines {
		body += "\n" + l
	}
	c.String(http.StatusOK, body)
}

// checkauth: Basic Auth → nowa sesja. Zawsze dozwolone (punkt wejścia).
func (h *Handler) checkAuth(c *gin.Context) {
	user, pass, ok := c.Request.BasicAuth()
	if !ok ||
		subtle.ConstantTimeCompare([]byte(user), []byte(h.opts.Login)) != 1 ||
		subtle.ConstantTimeCompare([]byte(pass), []byte(h.opts.Password)) != 1 {
		h.log.Warn().Str("user", user).Msg("checkauth: złe dane logowania")
		failure(c, http.StatusUnauthorized, "authentication failed")
		return
	}

	sess := h.sessions.Open()
	h.log.Info().Str("sessid", sess.Token).Msg("checkauth OK, sesja otwarta")
	// format odpowiedzi wymagany przez 1C: trzy linie CRLF
	c.String(http.StatusOK, "success\r\n%s\r\n%s", h.opts.CookieName, sess.Token)
}

func (h *Handler) session(c *gin.Context) *Session {
	token := c.Query("sessid")
	if token == "" {
		if v, err := c.Cookie(h.opts.CookieName); err == nil {
			token = v
		}
	}
	return h.sessions.Get(token)
}

// init: negocjacja możliwości + czystka po poprzednim cyklu tej sesji.
func (h *Handler) initSession(c *gin.Context) {
	sess := h.session(c)
	if sess == nil {
		failure(c, http.StatusForbidden, "no session")
		return
	}

	stager := NewStager(h.log, h.TempRoot(), sess.Token, h.opts.FileLimit, h.opts.LockWait)
	if n, err := stager.CleanupSession(); err != nil {
		h.log.Warn().Err(err).Msg("init: czystka tempa nieudana")
	} else if n > 0 {
		h.log.Info().Int("deleted", n).Str("sessid", sess.Token).Msg("init: temp wyczyszczony")
	}
	h.reapAbandonedTemp()

	c.String(http.StatusOK, "zip=yes\r\nfile_limit=%d\r\nsessid=%s\r\nversion=3.1",
		h.opts.FileLimit, sess.Token)
}

// reapAbandonedTemp kasuje katalogi sesji, po których nikt nie wrócił
// (starsze niż TTL sesji). Best-effort.
func (h *Handler) reapAbandonedTemp() {
	entries, err := os.ReadDir(h.TempRoot())
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-h.opts.SessionTTL)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if h.sessions.Peek(e.Name()) != nil {
			continue
		}
		p := filepath.Join(h.TempRoot(), e.Name())
		if err := os.RemoveAll(p); err != nil {
			h.log.Warn().Err(err).Str("path", p).Msg("reap temp: nie mogę skasować")
		}
	}
}

// file: przyjęcie kawałka pliku. Body czytane w stałych blokach – pamięć
// nie rośnie z rozmiarem uploadu.
func (h *Handler) uploadFile(c *gin.Context) {
	sess := h.session(c)
	if sess == nil {
		failure(c, http.StatusForbidden, "session mismatch")
		return
	}
	filename := c.Query("filename")
	if filename == "" {
		failure(c, http.StatusBadRequest, "missing filename")
		return
	}
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		failure(c, http.StatusBadRequest, "empty body")
		return
	}

	stager := NewStager(h.log, h.TempRoot(), sess.Token, h.opts.FileLimit, h.opts.LockWait)
	written, err := stager.AppendChunk(filename, c.Request.Body, h.opts.ChunkSize)
	if err != nil {
		switch {
		case errors.Is(err, ErrPayloadTooLarge):
			h.log.Warn().Str("file", filename).Int64("written", written).Msg("upload: limit przekroczony")
			failure(c, http.StatusRequestEntityTooLarge, "payload too large")
		case errors.Is(err, ErrLockNotAcquired):
			// ktoś inny pisze ten sam plik – 1C może powtórzyć request
			failure(c, http.StatusServiceUnavailable, "session busy")
		default:
			h.log.Error().Err(err).Str("file", filename).Msg("upload: błąd zapisu")
			failure(c, http.StatusInternalServerError, "internal error")
		}
		return
	}

	// routing po przyjęciu: porażka nie wywala uploadu, plik zostaje
	// bezpiecznie w stagingu do ręcznego ratunku
	router := NewRouter(h.TempRoot(), h.ImportRoot(), sess.Token)
	if router.ShouldRoute(filename) {
		if _, err := router.MoveToImport(filename); err != nil {
			h.log.Error().Err(err).Str("file", filename).Msg("routing nieudany, plik zostaje w stagingu")
		}
	}

	h.log.Info().Str("file", filepath.Base(filename)).Int64("bytes", written).
		Str("sessid", sess.Token).Msg("chunk przyjęty")
	success(c)
}

// import/complete: idempotentny sygnał startu importu.
func (h *Handler) triggerImport(c *gin.Context) {
	sess := h.session(c)
	if sess == nil {
		failure(c, http.StatusForbidden, "no session")
		return
	}
	if fn := c.Query("filename"); fn != "" {
		// 1C sygnalizuje per plik, ale import i tak zbiera cały katalog sesji
		h.log.Info().Str("file", fn).Msg("trigger importu dla pliku")
	}

	status, err := h.trigger.TriggerExchange(sess.Token)
	if err != nil {
		h.log.Error().Err(err).Str("sessid", sess.Token).Msg("import nieudany")
		failure(c, http.StatusInternalServerError, "import failed")
		return
	}
	switch status {
	case "already_in_progress", "already_complete":
		// duplikat sygnału – dla 1C to sukces, nic nie restartujemy
		success(c, status)
	default:
		success(c)
	}
}

// query: placeholder eksportu zamówień – pusta poprawna koperta CommerceML.
func (h *Handler) query(c *gin.Context) {
	if h.session(c) == nil {
		failure(c, http.StatusForbidden, "no session")
		return
	}
	envelope := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<КоммерческаяИнформация ВерсияСхемы="2.05" ДатаФормирования="%s"></КоммерческаяИнформация>`,
		time.Now().Format("2006-01-02T15:04:05"))
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(envelope))
}
