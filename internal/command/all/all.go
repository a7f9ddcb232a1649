// Package all registers every codi command.
package all

import (
	_ "github.com/keshon/codi/internal/command/backup"
	_ "github.com/keshon/codi/internal/command/help"
	_ "github.com/keshon/codi/internal/command/history"
	_ "github.com/keshon/codi/internal/command/journal"
	_ "github.com/keshon/codi/internal/command/peek"
	_ "github.com/keshon/codi/internal/command/recover"
	_ "github.com/keshon/codi/internal/command/verify"
	_ "github.com/keshon/codi/internal/command/watch"
)
