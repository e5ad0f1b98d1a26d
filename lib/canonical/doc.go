// Package canonical turns user supplied lock file paths into identity keys.
//
// A canonical path is the absolute, lexically normalized form of a path
// (filepath.Abs followed by filepath.Clean). Symbolic links are NOT resolved,
// so two canonical paths can differ as strings and still name the same file.
// Equivalent answers that question by comparing device and inode numbers.
//
// Usage Example:
//
//	p, err := canonical.Normalize("./locks/../db.lock")
//	if err != nil {
//	    // empty path
//	}
//
//	if _, err := canonical.EnsureExists(p); err != nil {
//	    // could not create the lock file
//	}
//
//	same, err := canonical.Equivalent(p, "/var/lib/app/db.lock")
package canonical
