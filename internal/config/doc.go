// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the service configuration.
//
// Precedence is ENV (MITABO_*) > YAML file > defaults. The YAML layer is
// strict: unknown keys and multi-document files are rejected.
package config
