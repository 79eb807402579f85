package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var logo = []string{
	"TTTTTTTT                      FFFFFFFF  LLLL                         ",
	"########                      ########  ####                         ",
	"   ##                         ##          ##                         ",
	"   ##      .eeee:   xxx  xxx  ##          ##       .OOOO.  WW      WW",
	"   ##     .######:   ##::##   ##          ##      .######. ##.    .##",
	"   ##     ##:  :##   :####:   #######     ##      ###  ###  #: ## :# ",
	"   ##     ########    ####    #######     ##      ##.  .## :#:.##.:#:",
	"   ##     ########    :##:    ##          ##      ##    ##  # :##:## ",
	"   ##     ##          ####    ##          ##      ##.  .##  ## ## ## ",
	"   ##     ###.  :#   :####:   ##          ##:     ###  ###  ###::##  ",
	"   ##     .#######   ##::##   ##          #####   .######.  :##..##: ",
	"   ##      .#####:  ###  ###  ##          .####    .####.   .##  ##  ",
}

var logoPalette = []lipgloss.Color{"#93FF96", "#7DE2D1", "#5B8DEF", "#AA7DCE", "#FF6B6B", "#FF9800"}

// Banner renders the welcome logo, cycling the palette line by line.
func Banner() string {
	lines := make([]string, len(logo))
	for i, line := range logo {
		style := lipgloss.NewStyle().Bold(true).Foreground(logoPalette[i%len(logoPalette)])
		lines[i] = style.Render(line)
	}
	return strings.Join(lines, "\n") + "\n"
}

// WriteBanner prints the banner followed by a short hint.
func WriteBanner(w io.Writer) {
	fmt.Fprintln(w, Banner())
	fmt.Fprintln(w, SubMsgStyle.Render("Build a document with: texflow --build --input data.json [--template journal]"))
}
