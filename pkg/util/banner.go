package util

import (
	"fmt"
	"io"
	"strings"

	"github.com/common-nighthawk/go-figure"
)

// 定义颜色常量
const (
	ColorReset  = "\x1b[0m"
	ColorRed    = "\x1b[1;31m"
	ColorGreen  = "\x1b[1;32m"
	ColorYellow = "\x1b[1;33m"
	ColorBlue   = "\x1b[1;34m"
	ColorCyan   = "\x1b[1;36m"
)

var colors = map[string]string{
	"red":    ColorRed,
	"green":  ColorGreen,
	"yellow": ColorYellow,
	"blue":   ColorBlue,
	"cyan":   ColorCyan,
}

// colorCode 颜色名转 ANSI 颜色码（不区分大小写，兼容 "ColorRed" 写法）
func colorCode(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, "Color"))
	if c, ok := colors[key]; ok {
		return c
	}
	return ColorReset
}

// RenderBanner 生成整体统一颜色的 ASCII banner
func RenderBanner(text, color string) string {
	fig := figure.NewFigure(text, "", true)
	ansiColor := colorCode(color)

	var b strings.Builder
	for _, line := range fig.Slicify() {
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString(ansiColor + line + ColorReset + "\n")
	}
	return b.String()
}

// PrintBanner 打印 banner 及版本行
func PrintBanner(w io.Writer, text, color, version string) {
	fmt.Fprint(w, RenderBanner(text, color))
	if version != "" {
		fmt.Fprintf(w, "%s%s %s%s\n", ColorCyan, text, version, ColorReset)
	}
}
