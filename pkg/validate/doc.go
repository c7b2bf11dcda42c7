// Package validate classifies raw chat answers into accepted values or
// user-facing rejections. Validators never coerce invalid input; an error
// return means a collaborator (the safety classifier) failed.
package validate
