package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"mdpreview/internal/auth"
	"mdpreview/internal/model"
)

type settingsVM struct {
	baseVM
	Form       model.Settings
	Themes     []model.Theme
	ViewModes  []string
	ProfileErr string
	EmailErr   string
	PassErr    string
}

func (s *Server) settingsVM(r *http.Request) settingsVM {
	vm := settingsVM{
		baseVM:    s.baseVMForRequest(r, "Settings"),
		Themes:    []model.Theme{model.ThemeSystem, model.ThemeLight, model.ThemeDark},
		ViewModes: []string{"split", "editor", "preview"},
	}
	vm.Form = vm.Settings
	switch r.URL.Query().Get("saved") {
	case "settings":
		vm.Notice = "Settings saved."
	case "profile":
		vm.Notice = "Profile updated."
	case "email":
		vm.Notice = "Email updated. Check your inbox to verify the new address."
	case "password":
		vm.Notice = "Password changed."
	}
	if r.URL.Query().Get("sent") == "1" {
		vm.Notice = "Verification email sent."
	}
	return vm
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	s.writeHTMLTemplate(w, "settings.html", s.settingsVM(r))
}

func (s *Server) handleSettingsPost(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	st := model.Settings{
		AutoSave:        r.Form.Get("auto_save") == "on",
		AutoSaveDelayMS: formInt(r, "auto_save_delay"),
		Theme:           model.Theme(strings.TrimSpace(r.Form.Get("theme"))),
		EditorFontSize:  formInt(r, "editor_font_size"),
		PreviewFontSize: formInt(r, "preview_font_size"),
		WordWrap:        r.Form.Get("word_wrap") == "on",
		LineNumbers:     r.Form.Get("line_numbers") == "on",
		ViewMode:        strings.TrimSpace(r.Form.Get("view_mode")),
	}
	if err := s.cfg.DB.Settings().Save(r.Context(), u.ID, st); err != nil {
		var verrs validation.Errors
		if !errors.As(err, &verrs) {
			s.serverError(w, r, err)
			return
		}
		vm := s.settingsVM(r)
		vm.Form = st
		vm.Error = verrs.Error()
		s.writeHTMLTemplateStatus(w, http.StatusBadRequest, "settings.html", vm)
		return
	}
	s.editors.applySettings(u.ID, st, s.cfg.Editor)
	s.logger.Info("settings saved", slog.String("user_id", u.ID))
	http.Redirect(w, r, "/settings?saved=settings", http.StatusSeeOther)
}

func (s *Server) handleProfilePost(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if _, err := s.cfg.Auth.UpdateName(r.Context(), u.ID, r.Form.Get("name")); err != nil {
		vm := s.settingsVM(r)
		vm.ProfileErr = auth.Message(err)
		s.writeHTMLTemplateStatus(w, http.StatusBadRequest, "settings.html", vm)
		return
	}
	http.Redirect(w, r, "/settings?saved=profile", http.StatusSeeOther)
}

func (s *Server) handleEmailPost(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	updated, err := s.cfg.Auth.UpdateEmail(r.Context(), u.ID, r.Form.Get("email"), r.Form.Get("password"))
	if err != nil {
		vm := s.settingsVM(r)
		vm.EmailErr = auth.Message(err)
		s.writeHTMLTemplateStatus(w, http.StatusBadRequest, "settings.html", vm)
		return
	}
	if err := s.cfg.Auth.SendVerification(r.Context(), updated.ID, s.absURL("/verify")); err != nil {
		s.logger.Warn("verification email failed", slog.String("user_id", updated.ID), slog.String("error", err.Error()))
	}
	http.Redirect(w, r, "/settings?saved=email", http.StatusSeeOther)
}

func (s *Server) handlePasswordPost(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	fail := func(msg string) {
		vm := s.settingsVM(r)
		vm.PassErr = msg
		s.writeHTMLTemplateStatus(w, http.StatusBadRequest, "settings.html", vm)
	}
	if r.Form.Get("new_password") != r.Form.Get("confirm_password") {
		fail("Passwords do not match.")
		return
	}
	if err := s.cfg.Auth.UpdatePassword(r.Context(), u.ID, r.Form.Get("current_password"), r.Form.Get("new_password")); err != nil {
		fail(auth.Message(err))
		return
	}
	http.Redirect(w, r, "/settings?saved=password", http.StatusSeeOther)
}

func formInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.Form.Get(key)))
	if err != nil {
		return 0
	}
	return n
}
