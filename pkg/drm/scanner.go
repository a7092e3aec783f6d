package drm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CardInfo contains a discovered DRM card
type CardInfo struct {
	Path   string
	Name   string
	Driver string
}

// CardScanner scans for DRM cards
type CardScanner struct {
	sysfsPath string
	devPath   string
}

// NewScanner creates a new card scanner
func NewScanner() *CardScanner {
	return &CardScanner{
		sysfsPath: "/sys/class/drm",
		devPath:   "/dev/dri",
	}
}

// Scan finds all primary DRM card nodes
func (s *CardScanner) Scan() ([]CardInfo, error) {
	if s.sysfsPath == "" {
		s.sysfsPath = "/sys/class/drm"
	}
	if s.devPath == "" {
		s.devPath = "/dev/dri"
	}

	var cards []CardInfo

	entries, err := os.ReadDir(s.sysfsPath)
	if err == nil {
		for _, entry := range entries {
			name := entry.Name()
			if !isCardName(name) {
				continue
			}

			devPath := filepath.Join(s.devPath, name)
			if _, err := os.Stat(devPath); err == nil {
				cards = append(cards, CardInfo{
					Path:   devPath,
					Name:   name,
					Driver: s.driverName(name),
				})
			}
		}
	}

	// Fall back to probing the device directory directly
	if len(cards) == 0 {
		for i := 0; i < 16; i++ {
			name := fmt.Sprintf("card%d", i)
			devPath := filepath.Join(s.devPath, name)
			if _, err := os.Stat(devPath); err == nil {
				cards = append(cards, CardInfo{
					Path: devPath,
					Name: name,
				})
			}
		}
	}

	return cards, nil
}

// driverName reads the kernel driver bound to a card from sysfs
func (s *CardScanner) driverName(card string) string {
	link, err := os.Readlink(filepath.Join(s.sysfsPath, card, "device", "driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(link)
}

// Scan uses the default scanner to find all DRM cards
func Scan() ([]CardInfo, error) {
	return NewScanner().Scan()
}

// isCardName matches "cardN" but not connector entries such as "card0-HDMI-A-1"
func isCardName(name string) bool {
	if !strings.HasPrefix(name, "card") || len(name) == len("card") {
		return false
	}
	for _, c := range name[len("card"):] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
