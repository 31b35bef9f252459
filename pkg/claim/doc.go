/*
Package claim implements the two-peer work-sharing protocol over
Needs_Action/.

A claim is a single atomic rename into the peer's In_Progress/<peer>/
zone; the filesystem arbitrates races, losers walk away. The cloud peer is
zone-restricted: WHATSAPP_, PAYMENT_ and BANKING_ files are screened out
before the claim, and external-send actions discovered post-claim are
released untouched. Abandoned claims are swept back to the queue by the
opposite peer once their mtime exceeds the claim TTL.
*/
package claim
