package nptrie

// Version is the semantic version of the nptrie library.
// It can be overridden at build time using:
//
//	go build -ldflags "-X github.com/CVDpl/go-nptrie/pkg/nptrie.Version=1.0.1"
//
// Default value follows SemVer.
var Version = "1.0.0"
