package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewHexID генерирует 32-символьный шестнадцатеричный идентификатор
// (UUIDv4 без дефисов). Используется для публичных идентификаторов посылок
// и сгенерированных идентификаторов сессий.
func NewHexID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
