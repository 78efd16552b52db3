package logging

import (
	"errors"
	"fmt"
	"sync"
)

// Компоненты сервера с собственными файлами логов
const (
	ComponentGame    = "game"
	ComponentAPI     = "api"
	ComponentStorage = "storage"
)

// LoggerManager хранит по одному логгеру на компонент.
// Уровень консоли всех новых логгеров берется из consoleLevel.
type LoggerManager struct {
	mu           sync.Mutex
	loggers      map[string]*Logger
	consoleLevel LogLevel
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = newLoggerManager()
	})
	return globalManager
}

func newLoggerManager() *LoggerManager {
	return &LoggerManager{loggers: make(map[string]*Logger), consoleLevel: INFO}
}

// SetConsoleLevel меняет уровень консоли у созданных и будущих логгеров
func (lm *LoggerManager) SetConsoleLevel(level LogLevel) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.consoleLevel = level
	for _, l := range lm.loggers {
		l.SetLevels(level, DEBUG)
	}
}

// Logger возвращает логгер компонента, создавая файл при первом обращении.
// Если файл создать нельзя, логгер пишет только в консоль.
func (lm *LoggerManager) Logger(component string) *Logger {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if l, ok := lm.loggers[component]; ok {
		return l
	}

	l, err := NewLogger(component)
	if err != nil {
		Warn("логгер %s без файла: %v", component, err)
		l = NewWriterLogger(component, defaultLogger.consoleLogger.Writer(), lm.consoleLevel)
	}
	l.SetLevels(lm.consoleLevel, DEBUG)
	lm.loggers[component] = l
	return l
}

// CloseAll закрывает файлы всех логгеров и забывает их
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var errs []error
	for component, l := range lm.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", component, err))
		}
	}
	lm.loggers = make(map[string]*Logger)
	return errors.Join(errs...)
}

// GetComponentLogger возвращает логгер компонента из глобального менеджера
func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().Logger(component)
}

// GetGameLogger - логгер сессий и менеджера игр
func GetGameLogger() *Logger { return GetComponentLogger(ComponentGame) }

func GetAPILogger() *Logger { return GetComponentLogger(ComponentAPI) }

// GetStorageLogger - логгер репозиториев уровней и записей
func GetStorageLogger() *Logger { return GetComponentLogger(ComponentStorage) }
