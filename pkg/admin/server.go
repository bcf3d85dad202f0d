// Package admin provides the HTTP admin surface: channel and rule
// management, provider introspection, the manual test action, the forum
// webhook intake and a live delivery event stream. It uses Echo v5 with
// JWT authentication.
package admin

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	echojwt "github.com/labstack/echo-jwt/v5"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"go.uber.org/zap"

	"chatrelay/pkg/config"
	"chatrelay/pkg/forum"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/model"
	"chatrelay/pkg/provider"
	"chatrelay/pkg/queue"
	"chatrelay/pkg/relay"
	"chatrelay/pkg/store"
	"chatrelay/pkg/version"
)

// Server is the admin HTTP server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	config     *config.Config
	logger     *logger.Logger
	store      *store.Store
	registry   *provider.Registry
	dispatcher *relay.Dispatcher
	queue      queue.Queue
	jwtSecret  string
	port       int
	startedAt  time.Time
}

// NewServer creates a new admin server.
func NewServer(
	cfg *config.Config,
	log *logger.Logger,
	s *store.Store,
	registry *provider.Registry,
	dispatcher *relay.Dispatcher,
	q queue.Queue,
) *Server {
	secret := cfg.Admin.JWTSecret
	if secret == "" {
		// Ephemeral secret; tokens die with the process.
		secret = uuid.NewString()
	}

	srv := &Server{
		config:     cfg,
		logger:     log,
		store:      s,
		registry:   registry,
		dispatcher: dispatcher,
		queue:      q,
		jwtSecret:  secret,
		port:       cfg.Admin.Port,
		startedAt:  time.Now(),
	}

	srv.setup()
	return srv
}

func (s *Server) setup() {
	e := echo.New()

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	// Public routes
	e.POST("/api/auth/login", s.handleLogin)

	// Forum webhook intake (authenticated by HMAC signature)
	e.POST("/api/hooks/post-created", s.handlePostCreated)

	// Delivery event stream (auth handled inside via token query param)
	e.GET("/api/deliveries/ws", s.handleDeliveriesWS)

	// Protected API routes
	api := e.Group("/api")
	api.Use(echojwt.WithConfig(echojwt.Config{
		KeyFunc: func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(s.jwtSecret), nil
		},
	}))

	// Provider routes
	api.GET("/providers", s.handleGetProviders)

	// Channel routes
	api.GET("/channels", s.handleGetChannels)
	api.POST("/channels", s.handleCreateChannel)
	api.PUT("/channels/:id", s.handleUpdateChannel)
	api.DELETE("/channels/:id", s.handleDeleteChannel)
	api.POST("/channels/:id/test", s.handleTestChannel)

	// Rule routes
	api.GET("/rules", s.handleGetRules)
	api.POST("/rules", s.handleCreateRule)
	api.POST("/rules/smart-create", s.handleSmartCreateRule)
	api.PUT("/rules/:id", s.handleUpdateRule)
	api.DELETE("/rules/:id", s.handleDeleteRule)

	// Status
	api.GET("/status", s.handleStatus)

	s.echo = e
}

// Start starts the admin server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("Admin server starting", zap.String("addr", addr))

	// Use http.Server directly so shutdown is controlled from the fx
	// lifecycle rather than Echo's own signal handling.
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Admin server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the admin server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Admin server stopping")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// --- Auth ---

func (s *Server) handleLogin(c *echo.Context) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	userOK := subtle.ConstantTimeCompare([]byte(body.Username), []byte(s.config.Admin.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(body.Password), []byte(s.config.Admin.Password)) == 1
	if s.config.Admin.Password == "" || !userOK || !passOK {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	}

	token, err := s.generateToken(body.Username)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "token generation failed"})
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (s *Server) generateToken(username string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"exp": now.Add(24 * time.Hour).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *Server) validateToken(tokenStr string) error {
	parsed, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || parsed == nil || !parsed.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

// --- Providers ---

type providerResponse struct {
	Name            string          `json:"name"`
	Enabled         bool            `json:"enabled"`
	SupportsThreads bool            `json:"supports_threads"`
	Params          []providerParam `json:"params"`
}

type providerParam struct {
	Key      string `json:"key"`
	Unique   bool   `json:"unique"`
	Optional bool   `json:"optional"`
	Hidden   bool   `json:"hidden"`
	Pattern  string `json:"pattern,omitempty"`
}

func (s *Server) handleGetProviders(c *echo.Context) error {
	var out []providerResponse
	for _, sink := range s.registry.All() {
		resp := providerResponse{
			Name:            sink.Name(),
			Enabled:         sink.IsEnabled(),
			SupportsThreads: sink.SupportsThreads(),
		}
		for _, p := range sink.ParameterSchema() {
			param := providerParam{
				Key:      p.Key,
				Unique:   p.Unique,
				Optional: p.Optional,
				Hidden:   p.Hidden,
			}
			if p.Pattern != nil {
				param.Pattern = p.Pattern.String()
			}
			resp.Params = append(resp.Params, param)
		}
		out = append(out, resp)
	}
	return c.JSON(http.StatusOK, out)
}

// --- Channels ---

type channelResponse struct {
	ID        string            `json:"id"`
	Provider  string            `json:"provider"`
	Data      map[string]string `json:"data"`
	ErrorKey  string            `json:"error_key,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// channelJSON masks hidden parameter values (tokens, webhook URLs) in
// listings.
func (s *Server) channelJSON(ch *model.Channel) channelResponse {
	data := make(map[string]string, len(ch.Data))
	for k, v := range ch.Data {
		data[k] = v
	}
	if params, _, ok := s.registry.ChannelSchema(ch.Provider); ok {
		for _, p := range params {
			if p.Hidden && data[p.Key] != "" {
				data[p.Key] = "••••••••"
			}
		}
	}
	return channelResponse{
		ID:        ch.ID,
		Provider:  ch.Provider,
		Data:      data,
		ErrorKey:  ch.ErrorKey,
		CreatedAt: ch.CreatedAt,
		UpdatedAt: ch.UpdatedAt,
	}
}

func (s *Server) handleGetChannels(c *echo.Context) error {
	channels, err := s.store.Channels(c.Request().Context(), c.QueryParam("provider"))
	if err != nil {
		s.logger.Error("Listing channels failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list channels"})
	}
	out := make([]channelResponse, 0, len(channels))
	for i := range channels {
		out = append(out, s.channelJSON(&channels[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateChannel(c *echo.Context) error {
	var body struct {
		Provider string            `json:"provider"`
		Data     map[string]string `json:"data"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	ch, err := s.store.CreateChannel(c.Request().Context(), body.Provider, body.Data)
	if err != nil {
		return s.storeError(c, err, "creating channel")
	}
	return c.JSON(http.StatusOK, s.channelJSON(ch))
}

func (s *Server) handleUpdateChannel(c *echo.Context) error {
	var body struct {
		Data map[string]string `json:"data"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	ch, err := s.store.UpdateChannel(c.Request().Context(), c.Param("id"), body.Data)
	if err != nil {
		return s.storeError(c, err, "updating channel")
	}
	return c.JSON(http.StatusOK, s.channelJSON(ch))
}

func (s *Server) handleDeleteChannel(c *echo.Context) error {
	if err := s.store.DeleteChannel(c.Request().Context(), c.Param("id")); err != nil {
		return s.storeError(c, err, "deleting channel")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleTestChannel(c *echo.Context) error {
	var body struct {
		PostID int64 `json:"post_id"`
	}
	if err := c.Bind(&body); err != nil || body.PostID == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "post_id required"})
	}

	err := s.dispatcher.Test(c.Request().Context(), c.Param("id"), body.PostID)
	if err != nil {
		var perr *provider.Error
		if errors.As(err, &perr) {
			return c.JSON(http.StatusBadGateway, map[string]string{
				"error":     "delivery failed",
				"error_key": perr.ErrorKey,
				"detail":    perr.Detail,
			})
		}
		return s.storeError(c, err, "testing channel")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "sent"})
}

// --- Rules ---

func (s *Server) handleGetRules(c *echo.Context) error {
	q := store.RuleQuery{
		ChannelID: c.QueryParam("channel_id"),
		Type:      model.RuleType(c.QueryParam("type")),
	}
	rules, err := s.store.Rules(c.Request().Context(), q)
	if err != nil {
		s.logger.Error("Listing rules failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list rules"})
	}
	if rules == nil {
		rules = []model.Rule{}
	}
	return c.JSON(http.StatusOK, rules)
}

type rulePayload struct {
	ChannelID  string   `json:"channel_id"`
	Type       string   `json:"type"`
	Filter     string   `json:"filter"`
	CategoryID *int64   `json:"category_id"`
	GroupID    *int64   `json:"group_id"`
	Tags       []string `json:"tags"`
}

func (s *Server) handleCreateRule(c *echo.Context) error {
	var body rulePayload
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	rule, err := s.store.CreateRule(c.Request().Context(), model.Rule{
		ChannelID:  body.ChannelID,
		Type:       model.RuleType(body.Type),
		Filter:     model.Filter(body.Filter),
		CategoryID: body.CategoryID,
		GroupID:    body.GroupID,
		Tags:       body.Tags,
	})
	if err != nil {
		return s.storeError(c, err, "creating rule")
	}
	return c.JSON(http.StatusOK, rule)
}

func (s *Server) handleSmartCreateRule(c *echo.Context) error {
	var body struct {
		ChannelID  string   `json:"channel_id"`
		Filter     string   `json:"filter"`
		CategoryID *int64   `json:"category_id"`
		Tags       []string `json:"tags"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	rule, result, err := s.store.SmartCreateRule(c.Request().Context(), body.ChannelID, model.Filter(body.Filter), body.CategoryID, body.Tags)
	if err != nil {
		return s.storeError(c, err, "smart-creating rule")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"result": string(result),
		"rule":   rule,
	})
}

func (s *Server) handleUpdateRule(c *echo.Context) error {
	var body rulePayload
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	rule, err := s.store.UpdateRule(c.Request().Context(), model.Rule{
		ID:         c.Param("id"),
		Type:       model.RuleType(body.Type),
		Filter:     model.Filter(body.Filter),
		CategoryID: body.CategoryID,
		GroupID:    body.GroupID,
		Tags:       body.Tags,
	})
	if err != nil {
		return s.storeError(c, err, "updating rule")
	}
	return c.JSON(http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(c *echo.Context) error {
	if err := s.store.DeleteRule(c.Request().Context(), c.Param("id")); err != nil {
		return s.storeError(c, err, "deleting rule")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Webhook intake ---

// handlePostCreated receives the forum's post-created webhook, verifies
// its HMAC signature and enqueues the post for deferred dispatch.
func (s *Server) handlePostCreated(c *echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	if !s.verifySignature(c.Request().Header.Get("X-Discourse-Event-Signature"), payload) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	}

	if event := c.Request().Header.Get("X-Discourse-Event"); event != "" && event != "post_created" {
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	var body struct {
		Post struct {
			ID int64 `json:"id"`
		} `json:"post"`
		PostID int64 `json:"post_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	postID := body.Post.ID
	if postID == 0 {
		postID = body.PostID
	}
	if postID == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "post id required"})
	}

	if err := s.queue.Enqueue(postID); err != nil {
		s.logger.Error("Enqueueing post failed", zap.Int64("post_id", postID), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "queued"})
}

func (s *Server) verifySignature(header string, payload []byte) bool {
	secret := s.config.Forum.WebhookSecret
	if secret == "" {
		// No secret configured means intake is open; fine for local
		// setups, logged once at startup.
		return true
	}
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header[len(prefix):]))
}

// --- Delivery event stream ---

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleDeliveriesWS(c *echo.Context) error {
	// Authenticate via token query param; WebSocket clients cannot set
	// an Authorization header.
	tokenStr := c.QueryParam("token")
	if tokenStr == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "token required"})
	}
	if err := s.validateToken(tokenStr); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}

	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("Delivery WS upgrade failed", zap.Error(err))
		return nil
	}
	defer conn.Close()

	events, cancel := s.dispatcher.Subscribe()
	defer cancel()

	// Read loop only notices the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(4096)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return nil
			}
		}
	}
}

// --- Status ---

func (s *Server) handleStatus(c *echo.Context) error {
	ctx := c.Request().Context()
	channels, err := s.store.Channels(ctx, "")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load channels"})
	}
	rules, err := s.store.Rules(ctx, store.RuleQuery{})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load rules"})
	}

	failing := 0
	for _, ch := range channels {
		if ch.ErrorKey != "" {
			failing++
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":          version.GetFullVersion(),
		"uptime":           time.Since(s.startedAt).Round(time.Second).String(),
		"providers":        s.registry.Names(),
		"channels":         len(channels),
		"failing_channels": failing,
		"rules":            len(rules),
		"queue_backend":    string(s.config.Queue.Backend),
	})
}

// --- Helpers ---

// storeError maps store failures to HTTP responses: validation errors
// surface their field and key, missing records become 404s.
func (s *Server) storeError(c *echo.Context, err error, action string) error {
	var verr *store.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{
			"error": verr.Key,
			"field": verr.Field,
		})
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, forum.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	s.logger.Error("Admin action failed", zap.String("action", action), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": action + " failed"})
}
