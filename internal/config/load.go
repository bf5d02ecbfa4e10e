// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"

	fwerrors "shieldcore.dev/fwcore/internal/errors"
)

// LoadFile decodes an HCL config file at path. A missing file is not an
// error — the daemon runs fine on Default() until one is written.
func LoadFile(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	cfg := Default()
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return Config{}, fwerrors.Wrap(err, fwerrors.KindValidation, "parse config file")
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = CurrentSchemaVersion
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fwerrors.Wrap(err, fwerrors.KindValidation, "validate config file")
	}
	return cfg, nil
}
