// Package classifier assigns roles to the controls of parsed forms.
//
// A form holding a password input is an authentication form. Its first
// submit-capable control becomes the submit control, and a text or email
// input whose id or name looks like a login name becomes the username field.
package classifier
