package model

// Platform is the normalized name of an operating system family.
type Platform string

const (
	PlatformWindows Platform = "Windows"
	PlatformLinux   Platform = "Linux"
	PlatformDarwin  Platform = "Darwin"
	PlatformUnknown Platform = "Unknown"
)

func (p Platform) String() string { return string(p) }
