package platform_test

import (
	"context"
	"fmt"

	"github.com/pflauncher/launcher/internal/platform"
)

func ExampleInfo_Tag() {
	info := &platform.Info{OS: "windows", Arch: "amd64"}

	fmt.Printf("game-%s.zip\n", info.Tag())
	fmt.Printf("Game%s\n", info.ExeSuffix())
	// Output:
	// game-windows-amd64.zip
	// Game.exe
}

func ExampleStaticDetector() {
	d := platform.StaticDetector{Info: &platform.Info{OS: "darwin", Arch: "arm64"}}
	info, _ := d.Detect(context.Background())

	fmt.Println(info.IsMacOS(), info.IsARM64())
	// Output: true true
}
