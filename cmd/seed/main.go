package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/models"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/internal/repository"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/config"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/database"
	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/logger"
)

type formTemplate struct {
	title  string
	fields []models.ReviewField
}

var defaultTemplates = map[models.FormType]formTemplate{
	models.FormTypeDuringClass: {
		title: "Avis pendant le cours",
		fields: []models.ReviewField{
			{Label: "Comment se passe le cours ?", Type: models.FieldTypeStars, Required: true},
			{Label: "Le rythme vous convient-il ?", Type: models.FieldTypeRadio, Required: true, Options: []string{"Trop lent", "Adapté", "Trop rapide"}},
			{Label: "Un commentaire pour l'intervenant ?", Type: models.FieldTypeTextarea},
		},
	},
	models.FormTypeAfterClass: {
		title: "Bilan de fin de module",
		fields: []models.ReviewField{
			{Label: "Note globale du module", Type: models.FieldTypeStars, Required: true},
			{Label: "Recommanderiez-vous ce module ?", Type: models.FieldTypeRadio, Required: true, Options: []string{"Oui", "Non"}},
			{Label: "Qu'est-ce qui pourrait être amélioré ?", Type: models.FieldTypeTextarea},
		},
	},
}

func main() {
	var (
		adminEmail    string
		adminPassword string
		adminName     string
		migrate       bool
		timeout       time.Duration
	)
	flag.BoolVar(&migrate, "migrate", true, "Apply pending schema migrations before seeding")
	flag.StringVar(&adminEmail, "admin-email", "", "Create an ADMIN account with this email when it does not exist")
	flag.StringVar(&adminPassword, "admin-password", "", "Password of the seeded ADMIN account")
	flag.StringVar(&adminName, "admin-name", "Administrator", "Display name of the seeded ADMIN account")
	flag.DurationVar(&timeout, "timeout", time.Minute, "Overall seed timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if migrate {
		if err := applyMigrations(ctx, db, logr); err != nil {
			logr.Fatal("apply migrations", zap.Error(err))
		}
	}

	forms := repository.NewFormRepository(db)
	for _, formType := range []models.FormType{models.FormTypeDuringClass, models.FormTypeAfterClass} {
		if err := seedTemplate(ctx, forms, formType, logr); err != nil {
			logr.Fatal("seed template", zap.String("type", string(formType)), zap.Error(err))
		}
	}

	if adminEmail != "" {
		if err := seedAdmin(ctx, repository.NewUserRepository(db), adminEmail, adminPassword, adminName, logr); err != nil {
			logr.Fatal("seed admin", zap.Error(err))
		}
	}
}

func seedTemplate(ctx context.Context, forms *repository.FormRepository, formType models.FormType, logr *zap.Logger) error {
	active, err := forms.FindActive(ctx, models.GlobalScope(), formType)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		logr.Info("global template already active", zap.String("type", string(formType)), zap.String("form_id", active[0].ID))
		return nil
	}

	tpl := defaultTemplates[formType]
	fields := make([]models.ReviewField, len(tpl.fields))
	for i, field := range tpl.fields {
		field.Order = i
		fields[i] = field
	}
	form := &models.ReviewForm{Title: tpl.title, Type: formType, IsActive: true}
	if err := forms.CreateWithFields(ctx, form, fields); err != nil {
		return err
	}
	logr.Info("global template created", zap.String("type", string(formType)), zap.String("form_id", form.ID), zap.String("public_link", form.PublicLink))
	return nil
}

func seedAdmin(ctx context.Context, users *repository.UserRepository, email, password, name string, logr *zap.Logger) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := users.FindByEmail(ctx, email); err == nil {
		logr.Info("admin already exists", zap.String("email", email))
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if len(password) < 8 {
		return errors.New("admin password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := &models.User{Email: email, PasswordHash: string(hash), FullName: name, Role: models.RoleAdmin, Active: true}
	if err := users.Create(ctx, user); err != nil {
		return err
	}
	logr.Info("admin created", zap.String("email", email), zap.String("user_id", user.ID))
	return nil
}
