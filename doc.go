// Package authflow implements the authentication and device-trust flow of a
// chat client: a multi-step sign-in/sign-up state machine combining password
// authentication, an out-of-band second factor, resendable one-time codes
// with cooldown timers, and time-boxed trusted-device exemptions.
//
// The package is a library with no server surface. The embedding UI drives an
// [Engine] (built through [Builder.Build]) and the Engine drives its external
// collaborators: a [CredentialStore] that owns user records, a [CodeDelivery]
// channel for one-time codes, and a [KeyValueStore] for device identity and
// trust grants.
//
// # Architecture boundaries
//
// authflow is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces, and value types (LoginResult,
// TrustedDeviceGrant, MetricsSnapshot). Audit dispatch internals live under
// internal/ and are never exported directly.
//
// # What this package must NOT do
//
//   - Persist or log plaintext one-time codes or passwords.
//   - Reveal whether an identifier corresponds to an existing account, in any
//     error path (password reset and login wording included).
//   - Apply a response that arrives after the user has navigated away from
//     the stage that initiated it.
package authflow
