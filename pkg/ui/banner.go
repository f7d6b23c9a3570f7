package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/waftester/mediaprobe/pkg/defaults"
)

// Global UI state
var (
	silentMode  bool
	noColorMode bool
	uiMu        sync.RWMutex
)

// SetSilent enables or disables silent mode (suppresses console output)
func SetSilent(silent bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	silentMode = silent
}

// IsSilent returns whether silent mode is enabled
func IsSilent() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return silentMode
}

// SetNoColor disables colored output
func SetNoColor(noColor bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	noColorMode = noColor
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsNoColor returns whether color is disabled
func IsNoColor() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return noColorMode
}

const bannerArt = `
                    ___                        __
   ____ ___  ___  ____/ (_)___ _____  _________  / /_  ___
  / __ ` + "`" + `__ \/ _ \/ __  / / __ ` + "`" + `/ __ \/ ___/ __ \/ __ \/ _ \
 / / / / / /  __/ /_/ / / /_/ / /_/ / /  / /_/ / /_/ /  __/
/_/ /_/ /_/\___/\__,_/_/\__,_/ .___/_/   \____/_.___/\___/
                            /_/
`

const bannerSeparator = "________________________________________________"

// PrintBanner prints the application banner with version info.
func PrintBanner(w io.Writer) {
	if IsSilent() {
		return
	}
	for _, line := range strings.Split(bannerArt, "\n") {
		if line != "" {
			fmt.Fprintln(w, BannerStyle.Render(line))
		}
	}
	fmt.Fprintf(w, "                       v%s\n\n", VersionStyle.Render(defaults.Version))
}

// Option is one line of the configuration banner.
type Option struct {
	Name  string
	Value string
}

// PrintConfig prints the run configuration in order.
// Format:  :: Option              : Value
func PrintConfig(w io.Writer, opts []Option) {
	if IsSilent() {
		return
	}
	for _, o := range opts {
		if o.Value == "" {
			continue
		}
		fmt.Fprintf(w, " :: %-20s : %s\n", ConfigLabelStyle.Render(o.Name), ConfigValueStyle.Render(o.Value))
	}
	fmt.Fprintf(w, "%s\n\n", DividerStyle.Render(bannerSeparator))
}

// PrintDivider prints a stylized divider
func PrintDivider(w io.Writer) {
	fmt.Fprintln(w, DividerStyle.Render(strings.Repeat("-", 60)))
}

// PrintSection prints a section header
func PrintSection(w io.Writer, title string) {
	if IsSilent() {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, SectionStyle.Render("> "+title))
	PrintDivider(w)
}
