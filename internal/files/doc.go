// Package files discovers result workbooks on disk.
//
// Discovery lists .xlsx workbooks in a directory, skipping the "~$" lock
// files Excel leaves next to open workbooks, and turns paths into
// domain.FileRef values ready for the prescan.
//
//	discovery := files.NewDiscovery("/projects/tower-a")
//	refs, err := discovery.FindWorkbooks("results")
package files
