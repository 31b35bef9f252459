/*
Package gitsync replicates the vault between peers through a shared git
remote.

Each cycle commits local state, pulls with merge, resolves conflicts by
directory policy (inbound queues take theirs, terminal stages keep ours,
review stages keep whichever side's status is further along) and pushes.
Credentials, sidecar state and the dashboard are pinned into .gitignore so
they never travel. The cycle outcome lands in Signals/SYNC_STATUS.md.
*/
package gitsync
