package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/voldigoa46-del/Cassidy/briefcase"
)

const configDirEnv = "BRIEFCASE_CONFIG_DIR"

// noinspection GoUnusedExportedFunction
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	initStart := time.Now()

	logger.Info("Loading Cassidy briefcase plugin...")

	configDir := os.Getenv(configDirEnv)
	if configDir == "" {
		configDir = "data/briefcase"
	}

	_, err := briefcase.Init(ctx, logger, nk, initializer,
		briefcase.WithInventorySystem(filepath.Join(configDir, "inventory.json"), true),
		briefcase.WithEconomySystem(filepath.Join(configDir, "economy.json"), true),
		briefcase.WithConsumeSystem(filepath.Join(configDir, "consume.json"), true),
		briefcase.WithInteractionsSystem(filepath.Join(configDir, "interactions.json"), true),
		briefcase.WithTradeSystem(filepath.Join(configDir, "trade.json"), true),
	)
	if err != nil {
		logger.Error("Failed to initialize briefcase systems: %v", err)
		return err
	}

	logger.Info("Cassidy briefcase plugin loaded in '%d' msec.", time.Since(initStart).Milliseconds())
	return nil
}

// main is never called; Nakama loads this module as a plugin via InitModule.
func main() {}
