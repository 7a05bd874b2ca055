package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mdpreview/internal/auth"
	"mdpreview/internal/model"
)

const sessionCookieName = "mdpreview_session"

type ctxKey int

const (
	userCtxKey ctxKey = iota
	tokenCtxKey
)

func userFromContext(ctx context.Context) *model.User {
	u, _ := ctx.Value(userCtxKey).(*model.User)
	return u
}

func tokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenCtxKey).(string)
	return t
}

// withUser resolves the session cookie. Invalid cookies are cleared.
func (s *Server) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookieName)
		if err != nil || strings.TrimSpace(c.Value) == "" {
			next.ServeHTTP(w, r)
			return
		}
		u, err := s.cfg.Auth.CurrentUser(r.Context(), c.Value)
		if err != nil {
			s.logger.Warn("session lookup failed", slog.String("error", err.Error()))
		}
		if u == nil {
			s.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), userCtxKey, u)
		ctx = context.WithValue(ctx, tokenCtxKey, c.Value)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireUser redirects anonymous visitors to /login, remembering where they were going.
func (s *Server) requireUser(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if userFromContext(r.Context()) == nil {
			http.Redirect(w, r, loginURL(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		h(w, r)
	}
}

func loginURL(next string) string {
	next = safeNext(next, "")
	if next == "" || next == "/" {
		return "/login"
	}
	return "/login?next=" + url.QueryEscape(next)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(s.cfg.Auth.SessionTTL()),
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

type authVM struct {
	baseVM
	Next      string
	Email     string
	FirstName string
	LastName  string
	Token     string
	Sent      bool
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if userFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.writeHTMLTemplate(w, "home.html", s.baseVMForRequest(r, "mdpreview"))
}

func (s *Server) handleLoginGet(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"), "/dashboard")
	if userFromContext(r.Context()) != nil {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	vm := authVM{baseVM: s.baseVMForRequest(r, "Sign in"), Next: next}
	if r.URL.Query().Get("reset") == "1" {
		vm.Notice = "Your password was changed. Sign in with the new one."
	}
	if msg := strings.TrimSpace(r.URL.Query().Get("error")); msg != "" {
		vm.Error = msg
	}
	s.writeHTMLTemplate(w, "login.html", vm)
}

func (s *Server) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.Form.Get("email"))
	next := safeNext(r.Form.Get("next"), "/dashboard")

	u, token, err := s.cfg.Auth.Login(r.Context(), email, r.Form.Get("password"))
	if err != nil {
		vm := authVM{baseVM: s.baseVMForRequest(r, "Sign in"), Next: next, Email: email}
		vm.Error = auth.Message(err)
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrTooManyAttempts) {
			status = http.StatusTooManyRequests
		}
		s.writeHTMLTemplateStatus(w, status, "login.html", vm)
		return
	}
	s.logger.Info("user signed in", slog.String("user_id", u.ID))
	s.setSessionCookie(w, token)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleSignupGet(w http.ResponseWriter, r *http.Request) {
	if userFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	vm := authVM{baseVM: s.baseVMForRequest(r, "Create account"), Next: safeNext(r.URL.Query().Get("next"), "/dashboard")}
	s.writeHTMLTemplate(w, "signup.html", vm)
}

func (s *Server) handleSignupPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	in := auth.RegisterInput{
		FirstName: r.Form.Get("first_name"),
		LastName:  r.Form.Get("last_name"),
		Email:     r.Form.Get("email"),
		Password:  r.Form.Get("password"),
	}
	next := safeNext(r.Form.Get("next"), "/dashboard")
	if r.Form.Get("password") != r.Form.Get("confirm_password") {
		vm := authVM{baseVM: s.baseVMForRequest(r, "Create account"), Next: next, Email: in.Email, FirstName: in.FirstName, LastName: in.LastName}
		vm.Error = "Passwords do not match."
		s.writeHTMLTemplateStatus(w, http.StatusBadRequest, "signup.html", vm)
		return
	}

	u, token, err := s.cfg.Auth.Register(r.Context(), in)
	if err != nil {
		vm := authVM{baseVM: s.baseVMForRequest(r, "Create account"), Next: next, Email: in.Email, FirstName: in.FirstName, LastName: in.LastName}
		vm.Error = auth.Message(err)
		s.writeHTMLTemplateStatus(w, http.StatusBadRequest, "signup.html", vm)
		return
	}
	if err := s.cfg.Auth.SendVerification(r.Context(), u.ID, s.absURL("/verify")); err != nil {
		s.logger.Warn("verification email failed", slog.String("user_id", u.ID), slog.String("error", err.Error()))
	}
	s.setSessionCookie(w, token)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleLogoutPost(w http.ResponseWriter, r *http.Request) {
	if token := tokenFromContext(r.Context()); token != "" {
		if err := s.cfg.Auth.Logout(r.Context(), token); err != nil {
			s.logger.Warn("logout failed", slog.String("error", err.Error()))
		}
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogoutAllPost(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	if err := s.cfg.Auth.LogoutAll(r.Context(), u.ID); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.editors.closeUser(u.ID)
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleForgotGet(w http.ResponseWriter, r *http.Request) {
	s.writeHTMLTemplate(w, "forgot.html", authVM{baseVM: s.baseVMForRequest(r, "Forgot password")})
}

func (s *Server) handleForgotPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.Form.Get("email"))
	vm := authVM{baseVM: s.baseVMForRequest(r, "Forgot password"), Email: email}
	if err := s.cfg.Auth.ForgotPassword(r.Context(), email, s.absURL("/reset-password")); err != nil {
		vm.Error = auth.Message(err)
		s.writeHTMLTemplateStatus(w, http.StatusBadRequest, "forgot.html", vm)
		return
	}
	vm.Sent = true
	vm.Notice = "If an account exists for that address, a reset link is on its way."
	s.writeHTMLTemplate(w, "forgot.html", vm)
}

func (s *Server) handleResetGet(w http.ResponseWriter, r *http.Request) {
	vm := authVM{baseVM: s.baseVMForRequest(r, "Reset password"), Token: r.URL.Query().Get("token")}
	if strings.TrimSpace(vm.Token) == "" {
		vm.Error = auth.Message(auth.ErrInvalidToken)
	}
	s.writeHTMLTemplate(w, "reset.html", vm)
}

func (s *Server) handleResetPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	token := r.Form.Get("token")
	if err := s.cfg.Auth.ResetPassword(r.Context(), token, r.Form.Get("password"), r.Form.Get("confirm_password")); err != nil {
		vm := authVM{baseVM: s.baseVMForRequest(r, "Reset password"), Token: token}
		vm.Error = auth.Message(err)
		s.writeHTMLTemplateStatus(w, http.StatusBadRequest, "reset.html", vm)
		return
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/login?reset=1", http.StatusSeeOther)
}

func (s *Server) handleVerifyGet(w http.ResponseWriter, r *http.Request) {
	vm := authVM{baseVM: s.baseVMForRequest(r, "Verify email")}
	u, err := s.cfg.Auth.Verify(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		vm.Error = auth.Message(err)
		s.writeHTMLTemplateStatus(w, http.StatusBadRequest, "verify.html", vm)
		return
	}
	vm.Email = u.Email
	vm.Notice = "Your email address is verified."
	s.writeHTMLTemplate(w, "verify.html", vm)
}

func (s *Server) handleVerifyResend(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	if err := s.cfg.Auth.SendVerification(r.Context(), u.ID, s.absURL("/verify")); err != nil {
		s.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/settings?sent=1", http.StatusSeeOther)
}

func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"), "/dashboard")
	u, err := s.cfg.Auth.GoogleAuthURL(next)
	if err != nil {
		http.Redirect(w, r, "/login?error="+url.QueryEscape(auth.Message(err)), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := strings.TrimSpace(q.Get("error")); e != "" {
		http.Redirect(w, r, "/login?error="+url.QueryEscape("Google sign-in was cancelled."), http.StatusSeeOther)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()
	u, token, next, err := s.cfg.Auth.CompleteGoogle(ctx, q.Get("code"), q.Get("state"))
	if err != nil {
		s.logger.Warn("google sign-in failed", slog.String("error", err.Error()))
		http.Redirect(w, r, "/login?error="+url.QueryEscape(auth.Message(err)), http.StatusSeeOther)
		return
	}
	s.logger.Info("user signed in", slog.String("user_id", u.ID), slog.String("provider", "google"))
	s.setSessionCookie(w, token)
	http.Redirect(w, r, safeNext(next, "/dashboard"), http.StatusSeeOther)
}
