/*
Package adapter turns approved action notes into external side-effects.

An Adapter owns one outbound system (email, one social platform, the ERP)
and reports an Outcome per dispatch. The Registry routes each approved
file to the first matching adapter; GenericAdapter is the always-matching
fallback that raises a manual-action notice instead of failing.

Adapters never move vault files. The orchestrator owns stage transitions
and performs the terminal move only after the adapter reports, so a crash
between side-effect and move errs on the side of a duplicate-visible file
rather than a lost one.
*/
package adapter
