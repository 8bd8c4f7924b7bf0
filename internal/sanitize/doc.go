// Package sanitize implements the allow-list that guards inserted content.
//
// This package is internal to ihtml. [ParseAllow] turns the element's allow
// attribute into an [Allow] set; [Clean] deletes whole subtrees whose tag
// needs a token the set lacks. Attributes are never rewritten: removal is
// structural only.
package sanitize
