package types

// Version is the canonical project version.
// The manifest schema version is locked to it.
const Version = "0.3.0"

// ManifestVersion is stamped on every manifest record.
const ManifestVersion = Version
