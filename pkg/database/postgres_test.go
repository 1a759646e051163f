package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/l3miage-diabyfa/Projet-Annuel--S4-sub001/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "course_feedback", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=course_feedback sslmode=disable", dsn)
}
