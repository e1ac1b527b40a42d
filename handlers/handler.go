package handlers

import (
	"gorm.io/gorm"

	"github.com/studydeck/studydeck-api/generation"
	"github.com/studydeck/studydeck-api/logger"
	"github.com/studydeck/studydeck-api/study"
)

// DBHandler carries the injected collaborators every handler needs.
type DBHandler struct {
	*gorm.DB
	Log         *logger.Logger
	Generations *generation.Service
	Sessions    *study.Store
}
