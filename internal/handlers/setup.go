package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ZXMushroom63/adschat-server/internal/models"
	"github.com/ZXMushroom63/adschat-server/internal/ratelimit"
)

var sugar *zap.SugaredLogger
var db *sql.DB
var validate = validator.New()
var development bool

func Setup(isHttps bool, cfg *models.ConfigFile, _sugar *zap.SugaredLogger, _db *sql.DB) error {
	sugar = _sugar
	db = _db
	development = cfg.Development

	messageLimiter := ratelimit.New(cfg.MessageRateCount, time.Duration(cfg.MessageRateWindowS)*time.Second)
	securityLimiter := ratelimit.New(cfg.SecurityRateCount, time.Duration(cfg.SecurityRateWindowS)*time.Second)

	r := chi.NewRouter()

	if cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}

	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(r chi.Router) {
			r.With(RateLimit(securityLimiter, "login")).Post("/login", Login)
			r.With(RateLimit(securityLimiter, "register")).Post("/register", Register)
			r.With(UserVerifier).Get("/newSession", NewSession)
			r.With(UserVerifier).Get("/isLoggedIn", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		})

		api.Route("/channels/{channelID}/messages", func(r chi.Router) {
			r.Use(UserVerifier)
			r.With(RateLimit(messageLimiter, "createMessage")).Post("/", CreateMessage)
			r.With(SessionVerifier).Get("/", GetMessageList)
		})

		api.With(UserVerifier).Delete("/messages/{messageID}", DeleteMessage)

		api.Route("/account", func(r chi.Router) {
			r.Use(RateLimit(securityLimiter, "accountSecurity"))
			r.With(UserVerifier).Post("/sendEmailConfirmCode", SendEmailConfirmCode)
			r.With(UserVerifier).Post("/verifyEmailConfirmCode", VerifyEmailConfirmCode)
			r.Post("/sendResetPasswordCode", SendResetPasswordCode)
			r.Post("/resetPassword", ResetPassword)
			r.With(UserVerifier).Post("/delete", DeleteAccount)
		})
	})

	var websocketPath string

	if cfg.BehindNginx {
		websocketPath = "/ws/"
	} else {
		websocketPath = "/ws"
		r.Handle("/cdn/*", http.StripPrefix("/cdn/", http.FileServer(http.Dir(cfg.AttachmentDir))))
	}

	r.With(UserVerifier).Get(websocketPath, HandleWebSocket)

	address := fmt.Sprintf("%s:%s", cfg.Address, cfg.Port)

	if isHttps {
		return http.ListenAndServeTLS(address, cfg.TlsCert, cfg.TlsKey, r)
	}
	return http.ListenAndServe(address, r)
}
