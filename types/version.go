package types

// Version is the canonical project version.
// The CLI, the feed header contract and the notification payload share it.
const Version = "0.4.0"

// ContractVersion is the version of the published notification payload.
const ContractVersion = "0.4.0"
