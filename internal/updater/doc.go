// Package updater runs synchronization passes: it compares the installed
// version record with the remote manifest and brings every stale component
// up to date.
//
// Each component goes through
//
//	Idle -> Checking -> UpToDate
//	                 -> Downloading -> Verifying -> Installing -> Recorded
//
// and any of Downloading, Verifying or Installing may end in Failed. A
// failure is terminal for that component in the current pass but never
// touches its siblings: the record entry stays as it was and the install
// directory keeps its previous contents.
//
// Components are processed one at a time. The record is saved after every
// completed component, so an interrupted pass keeps the updates it already
// applied.
package updater
