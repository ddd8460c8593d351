package tracefs

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	log "github.com/sirupsen/logrus"

	"github.com/mrzor/rawtrace/internal/eventtype"
	"github.com/mrzor/rawtrace/internal/procmeta"
)

// ftraceSystem holds the built-in ftrace events. It has no "enable" file and
// so never shows up in EventSystems.
const ftraceSystem = "ftrace"

// LocalEvents builds a registry from the event formats under dir. A nil
// systems list loads every system. The ftrace system is loaded when systems
// is nil or names it.
//
// Only a missing or broken events/header_page is fatal. Formats that cannot
// be read or parsed are logged and skipped; their count is returned.
func LocalEvents(dir string, systems []string) (*eventtype.Registry, int, error) {
	header, err := os.ReadFile(filepath.Join(dir, "events", "header_page"))
	if err != nil {
		return nil, 0, fmt.Errorf("read header_page: %w", err)
	}
	longSize, err := eventtype.ParseHeaderPage(header)
	if err != nil {
		return nil, 0, err
	}
	reg := eventtype.NewRegistry(binary.NativeEndian, longSize)

	all, err := EventSystems(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("list event systems: %w", err)
	}

	failures := 0
	for _, system := range all {
		if systems != nil && !slices.Contains(systems, system) {
			continue
		}
		failures += loadSystem(reg, dir, system)
	}
	if systems == nil || slices.Contains(systems, ftraceSystem) {
		failures += loadSystem(reg, dir, ftraceSystem)
	}

	log.WithFields(log.Fields{
		"dir":       dir,
		"events":    reg.Len(),
		"failures":  failures,
		"long_size": longSize,
	}).Debug("Loaded event formats")
	return reg, failures, nil
}

func loadSystem(reg *eventtype.Registry, dir, system string) int {
	events, err := SystemEvents(dir, system)
	if err != nil {
		log.Warnf("Failed to list events of %s: %v", system, err)
		return 1
	}

	failures := 0
	for _, name := range events {
		data, err := os.ReadFile(filepath.Join(dir, "events", system, name, "format"))
		if err != nil {
			// Directories without a format file are not events.
			if !os.IsNotExist(err) {
				log.Warnf("Failed to read format of %s:%s: %v", system, name, err)
				failures++
			}
			continue
		}
		typ, err := eventtype.ParseFormat(system, data)
		if err == nil {
			err = reg.Add(typ)
		}
		if err != nil {
			log.Warnf("Skipping event %s:%s: %v", system, name, err)
			failures++
		}
	}
	return failures
}

// LoadCmdlines fills m from the saved_cmdlines table under dir.
func LoadCmdlines(dir string, m *procmeta.Manager) (int, error) {
	f, err := os.Open(filepath.Join(dir, "saved_cmdlines"))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return m.ParseSavedCmdlines(f)
}
