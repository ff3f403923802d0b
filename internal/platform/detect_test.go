package platform

import (
	"context"
	"runtime"
	"testing"
)

func TestRealDetector_Detect(t *testing.T) {
	info, err := NewDetector().Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.OS != runtime.GOOS {
		t.Errorf("OS = %v, want %v", info.OS, runtime.GOOS)
	}
	if info.Arch != "amd64" && info.Arch != "arm64" {
		t.Errorf("Arch = %v, want amd64 or arm64", info.Arch)
	}
	if info.ArchRaw != runtime.GOARCH {
		t.Errorf("ArchRaw = %v, want %v", info.ArchRaw, runtime.GOARCH)
	}

	if runtime.GOOS != "linux" && info.Distro != "" {
		t.Errorf("Distro should be empty on non-Linux, got %v", info.Distro)
	}
}

func TestRealDetector_NonLinuxSkipsDistro(t *testing.T) {
	d := &RealDetector{goos: "darwin", goarch: "arm64"}

	info, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if info.OS != "darwin" || info.Arch != "arm64" {
		t.Errorf("got %s/%s, want darwin/arm64", info.OS, info.Arch)
	}
	if info.Distro != "" || info.Family != "" || info.Version != "" {
		t.Errorf("distro fields should be empty, got %+v", info)
	}
}

func TestRealDetector_UnsupportedArch(t *testing.T) {
	d := &RealDetector{goos: "linux", goarch: "riscv64"}

	if _, err := d.Detect(context.Background()); err == nil {
		t.Fatal("expected error for unsupported architecture")
	}
}

func TestStaticDetector(t *testing.T) {
	d := StaticDetector{Info: Info{OS: "linux", Arch: "arm64"}}

	info, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	info.OS = "mutated"

	again, _ := d.Detect(context.Background())
	if again.OS != "linux" {
		t.Error("StaticDetector should return a copy")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Detect(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestInfo_AssetSuffix(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{"linux_amd64", Info{OS: "linux", Arch: "amd64"}, "linux_amd64"},
		{"linux_arm64", Info{OS: "linux", Arch: "arm64"}, "linux_arm64"},
		{"darwin_universal", Info{OS: "darwin", Arch: "arm64"}, "darwin_all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.AssetSuffix(); got != tt.want {
				t.Errorf("AssetSuffix() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInfo_SupportsNativeRecorder(t *testing.T) {
	if !(&Info{OS: "linux"}).SupportsNativeRecorder() {
		t.Error("linux should support the native recorder")
	}
	if (&Info{OS: "windows"}).SupportsNativeRecorder() {
		t.Error("windows should not support the native recorder")
	}
}
