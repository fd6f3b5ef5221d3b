// Package localization реализует таблицу строк интерфейса бота.
// Переводы загружаются один раз при старте процесса из JSON-файла
// вида {"ru": {"key": "строка"}, "en": {"key": "string"}}.
package localization

import (
	"encoding/json"
	"fmt"
	"os"
)

// Localizer хранит неизменяемую после загрузки таблицу переводов.
type Localizer struct {
	defaultLanguage string
	translations    map[string]map[string]string
}

// Load читает файл переводов и возвращает готовый Localizer.
func Load(path, defaultLanguage string) (*Localizer, error) {
	const op = "localization.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var translations map[string]map[string]string
	if err := json.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Localizer{
		defaultLanguage: defaultLanguage,
		translations:    translations,
	}, nil
}

// Get возвращает строку по ключу для указанного языка.
// Пустой язык означает язык по умолчанию. Для неизвестного ключа
// возвращается сам ключ, чтобы сбой перевода был виден, но не фатален.
func (l *Localizer) Get(key, language string) string {
	if language == "" {
		language = l.defaultLanguage
	}
	if msg, ok := l.translations[language][key]; ok {
		return msg
	}
	if msg, ok := l.translations[l.defaultLanguage][key]; ok {
		return msg
	}
	return key
}

// Getf возвращает строку по ключу, подставляя аргументы через fmt.Sprintf.
func (l *Localizer) Getf(key, language string, args ...any) string {
	return fmt.Sprintf(l.Get(key, language), args...)
}
