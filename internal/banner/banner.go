package banner

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"loadsurge/internal/styles"
)

var ascii = strings.Join([]string{
	`    __                    __   _____                      `,
	`   / /   ____  ____ _____/ /  / ___/__  ___________ ____ `,
	"  / /   / __ \\/ __ `/ __  /   \\__ \\/ / / / ___/ __ `/ _ \\",
	` / /___/ /_/ / /_/ / /_/ /   ___/ / /_/ / /  / /_/ /  __/`,
	`/_____/\____/\__,_/\__,_/   /____/\__,_/_/   \__, /\___/ `,
	`                                            /____/        `,
}, "\n")

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	return "\n" + style.Render(ascii) + "\n"
}
