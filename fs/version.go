package fs

// Version of sharepkg, overridden at link time with
// -ldflags "-X github.com/sharepkg/sharepkg/fs.Version=v1.2.3"
var Version = "v0.1.0-DEV"
